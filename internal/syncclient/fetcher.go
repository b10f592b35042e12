package syncclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/staylink/verification-service/internal/domain"
)

type subjectEnvelope struct {
	Data     remoteSubject `json:"data"`
	Warnings []string      `json:"warnings"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RESTFetcher reads subjects from the verification API.
type RESTFetcher struct {
	client *resty.Client
}

// NewRESTFetcher builds a fetcher authenticated with the submitter's bearer token.
func NewRESTFetcher(baseURL, token string, timeout time.Duration) *RESTFetcher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &RESTFetcher{client: client}
}

// Fetch loads the partner subject or one property subject.
func (f *RESTFetcher) Fetch(ctx context.Context, ref SubjectRef) (SubjectState, error) {
	req := f.client.R().
		SetContext(ctx).
		SetResult(&subjectEnvelope{}).
		SetError(&apiError{})

	var (
		resp *resty.Response
		err  error
	)
	switch ref.Kind {
	case domain.SubjectKindPartner:
		resp, err = req.Get("/partner/verification")
	case domain.SubjectKindProperty:
		resp, err = req.SetPathParam("id", ref.ID).Get("/host/properties/{id}/verification")
	default:
		return SubjectState{}, fmt.Errorf("%w: subject kind %q", domain.ErrUnknownValue, ref.Kind)
	}
	if err != nil {
		return SubjectState{}, err
	}
	if resp.IsError() {
		if body, ok := resp.Error().(*apiError); ok && body.Error.Code != "" {
			return SubjectState{}, fmt.Errorf("%s: %s (%d)", body.Error.Code, body.Error.Message, resp.StatusCode())
		}
		return SubjectState{}, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	if resp.StatusCode() != http.StatusOK {
		return SubjectState{}, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	envelope, ok := resp.Result().(*subjectEnvelope)
	if !ok {
		return SubjectState{}, fmt.Errorf("%w: empty subject response", domain.ErrUnknownValue)
	}
	return parseSubject(envelope.Data, envelope.Warnings)
}

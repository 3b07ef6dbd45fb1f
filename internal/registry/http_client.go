package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trackerbridge/internal/config"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/circuitbreaker"
	pkgerrors "trackerbridge/pkg/errors"
	"trackerbridge/pkg/metrics"
)

// HTTPClient talks to the tracker registry's HTTP API. Transient failures
// are retried by resty; persistent registry outages trip the breaker so
// document processing backs off instead of hammering a down host.
type HTTPClient struct {
	http    *resty.Client
	breaker *circuitbreaker.Wrapper
	logger  logger.Logger
}

func NewHTTPClient(cfg config.RegistryConfig, log logger.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetBasicAuth(cfg.Username, cfg.Password).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &HTTPClient{
		http:    client,
		breaker: circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("registry")),
		logger:  log,
	}
}

func (c *HTTPClient) FindActiveEnrollment(ctx context.Context, programID, subjectID string, forceRefresh bool) (*tracker.Enrollment, error) {
	params := map[string]string{
		"program":        programID,
		"trackedSubject": subjectID,
		"status":         string(tracker.EnrollmentActive),
		"order":          "enrollmentDate:desc",
		"pageSize":       "1",
	}
	if forceRefresh {
		params["skipCache"] = "true"
	}

	var page struct {
		Enrollments []*tracker.Enrollment `json:"enrollments"`
	}
	if err := c.getJSON(ctx, "find_active_enrollment", "/api/enrollments", params, &page); err != nil {
		return nil, err
	}
	if len(page.Enrollments) == 0 {
		return nil, nil
	}
	return page.Enrollments[0], nil
}

func (c *HTTPClient) GetEnrollment(ctx context.Context, id string) (*tracker.Enrollment, error) {
	var enrollment tracker.Enrollment
	err := c.getJSON(ctx, "get_enrollment", "/api/enrollments/"+id, nil, &enrollment)
	if pkgerrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (c *HTTPClient) GetEvent(ctx context.Context, id string) (*tracker.Event, error) {
	var event tracker.Event
	err := c.getJSON(ctx, "get_event", "/api/events/"+id, nil, &event)
	if pkgerrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *HTTPClient) FindTrackedSubject(ctx context.Context, ref string) (*tracker.TrackedSubject, error) {
	if ref == "" {
		return nil, nil
	}

	var subject tracker.TrackedSubject
	err := c.getJSON(ctx, "find_tracked_subject", "/api/trackedSubjects/"+subjectID(ref), nil, &subject)
	if pkgerrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

func (c *HTTPClient) FindOrgUnit(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	var unit struct {
		ID string `json:"id"`
	}
	err := c.getJSON(ctx, "find_org_unit", "/api/organisationUnits/"+orgUnitID(ref), nil, &unit)
	if pkgerrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return unit.ID, nil
}

// orgUnitID strips a "Organization/<id>"-style reference down to the id.
func orgUnitID(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// subjectID strips a "Patient/<id>"-style reference down to the id.
func subjectID(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func (c *HTTPClient) getJSON(ctx context.Context, operation, path string, params map[string]string, out interface{}) error {
	start := time.Now()

	result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		req := c.http.R().SetContext(ctx)
		if params != nil {
			req.SetQueryParams(params)
		}

		resp, err := req.Get(path)
		if err != nil {
			return nil, fmt.Errorf("registry request failed: %w", err)
		}

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return nil, pkgerrors.ErrNotFound.WithMessage("registry returned 404 for %s", path)
		case resp.IsError():
			return nil, fmt.Errorf("registry returned status %d for %s", resp.StatusCode(), path)
		}
		return resp.Body(), nil
	})

	status := "success"
	if err != nil {
		status = "error"
		if pkgerrors.IsNotFound(err) {
			status = "not_found"
		}
	}
	metrics.IncRegistryRequest(operation, status)
	metrics.ObserveRegistryRequestDuration(operation, time.Since(start))

	if err != nil {
		return err
	}
	if err := json.Unmarshal(result.([]byte), out); err != nil {
		return fmt.Errorf("failed to decode registry response: %w", err)
	}
	return nil
}

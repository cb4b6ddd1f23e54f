package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scooter-ride/internal/ride"

	"github.com/gofiber/fiber/v2"
)

const requestTimeout = 5 * time.Second

type rideStatus struct {
	Phase ride.Phase    `json:"phase"`
	State ride.Snapshot `json:"state"`
}

// apiClient talks to the /ride routes with fiber's HTTP client.
type apiClient struct {
	base  string
	token string
}

func newAPIClient(opts *rootOptions) *apiClient {
	return &apiClient{base: strings.TrimRight(opts.api, "/"), token: opts.token}
}

func (c *apiClient) Status() (rideStatus, error) {
	var out rideStatus
	err := c.do(fiber.Get(c.base+"/ride"), nil, &out)
	return out, err
}

func (c *apiClient) Details() (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(fiber.Get(c.base+"/ride/details"), nil, &out)
	return out, err
}

func (c *apiClient) SetRider(email, scooterID string) (rideStatus, error) {
	var out rideStatus
	body := map[string]string{"email": email, "scooter_id": scooterID}
	err := c.do(fiber.Put(c.base+"/ride/rider"), body, &out)
	return out, err
}

func (c *apiClient) Start() (rideStatus, error) {
	var out rideStatus
	err := c.do(fiber.Post(c.base+"/ride/start"), nil, &out)
	return out, err
}

func (c *apiClient) End() (rideStatus, error) {
	var out rideStatus
	err := c.do(fiber.Post(c.base+"/ride/end"), nil, &out)
	return out, err
}

func (c *apiClient) SetSpeed(speed int) (rideStatus, error) {
	var out rideStatus
	err := c.do(fiber.Put(c.base+"/ride/speed"), map[string]int{"speed": speed}, &out)
	return out, err
}

func (c *apiClient) do(a *fiber.Agent, body any, out any) error {
	a.Timeout(requestTimeout)
	if c.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if body != nil {
		a.JSON(body)
	}

	code, resp, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("request failed: %w", errors.Join(errs...))
	}
	if code >= fiber.StatusBadRequest {
		return fmt.Errorf("api returned %d: %s", code, strings.TrimSpace(string(resp)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

// Package transfer implements the remote side of snapshot exchange: a
// client that talks to another lineagehub instance to push, pull and
// enumerate snapshot files, and to manage datasets. All requests run
// through a circuit breaker so a flaky or unreachable remote degrades
// into fast failures instead of piling up blocked uploads.
package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/lineagehub/internal/lineage"
	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// ErrRemote reports that the remote hub answered but refused the
// operation, as opposed to a transport failure.
var ErrRemote = errors.New("remote hub rejected operation")

const defaultTimeout = 30 * time.Second

// FixupURL prepends http:// when the address carries no scheme.
// Returns the input unchanged when no fixup is needed.
func FixupURL(remote string) string {
	if strings.HasPrefix(remote, "http://") || strings.HasPrefix(remote, "https://") {
		return remote
	}
	return "http://" + remote
}

// Client exchanges snapshot files with a remote hub.
type Client struct {
	baseURL string
	hc      *http.Client
	cb      *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient builds a client for the given remote address. The address
// may omit the scheme; port and path are taken as given.
func NewClient(remote string) *Client {
	cbName := "remote-hub"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	logger := logging.WithComponent("transfer")

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		baseURL: strings.TrimSuffix(FixupURL(remote), "/"),
		hc:      &http.Client{Timeout: defaultTimeout},
		cb:      cb,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// do runs one request through the circuit breaker. Non-2xx responses
// count as failures so a misbehaving remote trips the breaker too.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			resp.Body.Close()
			return nil, fmt.Errorf("remote returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues("remote-hub", "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues("remote-hub", "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues("remote-hub", "success").Inc()
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// ListAvailableFiles returns the snapshot names the remote dataset
// currently holds, one per listing line.
func (c *Client) ListAvailableFiles(ctx context.Context, dataset string) ([]string, error) {
	resp, err := c.get(ctx, "/"+url.PathEscape(dataset)+"/list")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list returned %d", ErrRemote, resp.StatusCode)
	}

	var files []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			files = append(files, line)
		}
	}
	return files, scanner.Err()
}

// GetFile downloads one snapshot into the given local folder, keeping
// the remote name.
func (c *Client) GetFile(ctx context.Context, dataset, filename string, toDir string) error {
	resp, err := c.get(ctx, "/"+url.PathEscape(dataset)+"/files/"+url.PathEscape(filename))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download of %q returned %d", ErrRemote, filename, resp.StatusCode)
	}

	out, err := os.Create(filepath.Join(toDir, filename))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PutFile uploads one local snapshot to the remote dataset, announcing
// its spot and link counts in the query string.
func (c *Client) PutFile(ctx context.Context, dataset, filename string, spots, links int, fromDir string) error {
	in, err := os.Open(filepath.Join(fromDir, filename))
	if err != nil {
		return err
	}
	defer in.Close()

	target := fmt.Sprintf("%s/%s/put?name=%s&spots=%d&links=%d",
		c.baseURL, url.PathEscape(dataset), url.QueryEscape(filename), spots, links)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, in)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: upload of %q returned %d", ErrRemote, filename, resp.StatusCode)
	}
	return nil
}

// PutSnapshot uploads a snapshot and derives its spot and link counts
// from the embedded count header.
func (c *Client) PutSnapshot(ctx context.Context, dataset, filename, fromDir string, counter lineage.GraphCounter) error {
	if counter == nil {
		counter = lineage.ContainerCounter{}
	}
	spots, links, err := counter.Counts(filepath.Join(fromDir, filename))
	if err != nil {
		return fmt.Errorf("reading counts from %q: %w", filename, err)
	}
	return c.PutFile(ctx, dataset, filename, spots, links, fromDir)
}

// manage performs one of the registry operations and returns the
// literal response body.
func (c *Client) manage(ctx context.Context, path string) (string, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(string(body))
	if reply == "ERROR" {
		return "", fmt.Errorf("%w: %s", ErrRemote, path)
	}
	return reply, nil
}

// AddDataset creates a plain dataset on the remote hub and returns
// the name the remote echoed back.
func (c *Client) AddDataset(ctx context.Context, name string) (string, error) {
	return c.manage(ctx, "/add/"+url.PathEscape(name))
}

// AddSecretDataset creates a dataset under a randomized name on the
// remote hub and returns that full secret name.
func (c *Client) AddSecretDataset(ctx context.Context, name string) (string, error) {
	return c.manage(ctx, "/addSecret/"+url.PathEscape(name))
}

// RemoveDataset deletes the named dataset and its files on the remote.
func (c *Client) RemoveDataset(ctx context.Context, name string) error {
	reply, err := c.manage(ctx, "/remove/"+url.PathEscape(name))
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w: remove replied %q", ErrRemote, reply)
	}
	return nil
}

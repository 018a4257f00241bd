// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joeycumines/go-apphost/internal/asyncio"
)

// WorkKind classifies background work submissions.
type WorkKind = asyncio.Kind

// Background work kinds. Completions are delivered in submission order within
// each kind.
const (
	WorkFile    = asyncio.KindFile
	WorkNetwork = asyncio.KindNetwork
	WorkCompute = asyncio.KindCompute
)

// fetchClient is the HTTP client used by FetchAsync. Package-level so tests
// can point it at a local server.
var fetchClient = &http.Client{Timeout: 30 * time.Second}

// SubmitWork runs work on the background pool and schedules cb on the loop
// thread with the (result, error) pair once the work completes. The callback
// never runs in the same tick as the submission, and never on the same stack
// as the caller. The work closure must not touch script-engine state.
func (h *Host) SubmitWork(kind WorkKind, work func() (any, error), cb any) error {
	if h.state.Load() >= StateTerminating {
		return ErrHostTerminated
	}
	h.nextToken++
	token := h.nextToken
	h.work[token] = h.handles.Protect(cb)
	if err := h.sub.Submit(kind, work, token); err != nil {
		cbHandle := h.work[token]
		delete(h.work, token)
		_ = h.handles.Release(cbHandle)
		return err
	}
	return nil
}

// ReadFileAsync reads path through the VFS on the background pool. The
// callback receives ([]byte, error).
func (h *Host) ReadFileAsync(path string, cb any) error {
	vfs := h.vfs
	return h.SubmitWork(asyncio.KindFile, func() (any, error) {
		return vfs.ReadFile(path)
	}, cb)
}

// FetchAsync performs an HTTP GET on the background pool. The callback
// receives (body []byte, error); a non-2xx status is an error.
func (h *Host) FetchAsync(url string, cb any) error {
	return h.SubmitWork(asyncio.KindNetwork, func() (any, error) {
		resp, err := fetchClient.Get(url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("apphost: fetch %s: unexpected status %s", url, resp.Status)
		}
		return body, nil
	}, cb)
}

// PendingWork returns the number of background submissions whose callbacks
// have not yet been delivered.
func (h *Host) PendingWork() int {
	return len(h.work)
}

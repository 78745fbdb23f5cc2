// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// keepAliveInterval is how often an SSE comment is sent so proxies do not
// drop idle streams.
const keepAliveInterval = 25 * time.Second

// AdminStream pushes list updates for one collection as server-sent
// events. The dashboard subscribes instead of polling; every remote change
// arrives as a full ordered list, the same shape AdminList returns.
func (h *Handler) AdminStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.syncs[chi.URLParam(r, "collection")]
	if !ok {
		WriteNotFound(w, "Unknown collection")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternalError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := s.Listen()
	defer cancel()

	// The current list goes out immediately; Listen only delivers it when
	// the first snapshot has already landed.
	if items, loading := s.Snapshot(); !loading {
		writeEvent(w, items)
		flusher.Flush()
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case items := <-updates:
			writeEvent(w, items)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: list\ndata: %s\n\n", payload)
}

/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sinks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// LogHandler serves the rule owners' read API over a log sink:
// GET with rule_id, workspace_id, level, page, and size query parameters.
func LogHandler(ls LogSink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := LogQuery{
			WorkspaceID: r.URL.Query().Get("workspace_id"),
			Level:       LogLevel(r.URL.Query().Get("level")),
		}
		if raw := r.URL.Query().Get("rule_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "bad rule_id", http.StatusBadRequest)
				return
			}
			q.RuleID = id
		}
		q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
		q.Size, _ = strconv.Atoi(r.URL.Query().Get("size"))

		entries, err := ls.ListEntries(r.Context(), q)
		if err != nil {
			clog.FromContext(r.Context()).With("error", err).Error("Listing evaluation logs failed")
			http.Error(w, "listing logs failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"entries": entries,
		}); err != nil {
			clog.FromContext(r.Context()).With("error", err).Warn("Encoding log response failed")
		}
	})
}

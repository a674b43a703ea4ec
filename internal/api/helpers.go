//
// helpers.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// getPodcastIDParam from request url.
func getPodcastIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "podcastid")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse podcast id %q error: %w", raw, err)
	}

	if id <= 0 {
		return 0, fmt.Errorf("invalid podcast id %q", raw)
	}

	return id, nil
}

// getSinceParameter from request url query.
func getSinceParameter(r *http.Request) (time.Time, error) {
	since := time.Time{}

	if s := r.URL.Query().Get("since"); s != "" {
		se, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return since, fmt.Errorf("parse since %q error: %w", s, err)
		}

		since = time.Unix(se, 0).UTC()
	}

	return since, nil
}

func mapSlice[T, R any](in []T, mapf func(*T) R) []R {
	res := make([]R, len(in))
	for i := range in {
		res[i] = mapf(&in[i])
	}

	return res
}

//
// mod.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/samber/do/v2"
)

type API struct{}

func New(_ do.Injector) (API, error) {
	return API{}, nil
}

func (a *API) Routes(i do.Injector) chi.Router {
	router := chi.NewRouter()
	router.Mount("/player", do.MustInvoke[playerResource](i).Routes())
	router.Mount("/podcasts", do.MustInvoke[podcastsResource](i).Routes())
	router.Mount("/queue", do.MustInvoke[queueResource](i).Routes())
	router.Mount("/downloads", do.MustInvoke[downloadsResource](i).Routes())
	router.Mount("/settings", do.MustInvoke[settingsResource](i).Routes())
	router.Mount("/system", do.MustInvoke[systemResource](i).Routes())

	return router
}

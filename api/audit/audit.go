// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package audit

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/subsidynet/subsidy/api/utils"
	"github.com/subsidynet/subsidy/auditdb"
)

const defaultLimit = 100

type Audit struct {
	db    *auditdb.AuditDB
	limit uint64
}

// New create an audit query endpoint. limit bounds the page size of a
// single query, 0 picks the default.
func New(db *auditdb.AuditDB, limit uint64) *Audit {
	if limit == 0 {
		limit = defaultLimit
	}
	return &Audit{db, limit}
}

func (a *Audit) handleFilter(w http.ResponseWriter, req *http.Request) error {
	var filter auditdb.EventFilter
	if err := utils.ParseJSON(req.Body, &filter); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if filter.Options == nil {
		filter.Options = &auditdb.Options{Limit: a.limit}
	}
	if filter.Options.Limit > a.limit {
		return utils.BadRequest(errors.Errorf("options.limit exceeds the maximum allowed value of %v", a.limit))
	}
	events, err := a.db.Filter(req.Context(), &filter)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, events)
}

func (a *Audit) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(a.handleFilter))
	sub.Path("/").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(a.handleFilter))
}

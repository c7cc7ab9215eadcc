// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/subsidynet/subsidy/api/audit"
	"github.com/subsidynet/subsidy/api/sponsorship"
	"github.com/subsidynet/subsidy/api/staking"
	"github.com/subsidynet/subsidy/api/utils"
	"github.com/subsidynet/subsidy/auditdb"
	"github.com/subsidynet/subsidy/ledger"
	"github.com/subsidynet/subsidy/sponsor"
)

type Options struct {
	AllowedOrigins string
	AuditLimit     uint64
}

// New return the assembled http handler of the service.
func New(
	l *ledger.Ledger,
	engine *sponsor.Engine,
	auditDB *auditdb.AuditDB,
	opts Options,
) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	staking.New(l).Mount(router, "/staking")
	sponsorship.New(engine).Mount(router, "/sponsorship")
	if auditDB != nil {
		audit.New(auditDB, opts.AuditLimit).Mount(router, "/audit")
	}

	router.Path("/health").Methods(http.MethodGet).HandlerFunc(
		utils.WrapHandlerFunc(func(w http.ResponseWriter, _ *http.Request) error {
			halted := engine.Halted()
			if halted {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			return utils.WriteJSON(w, utils.M{
				"healthy": !halted,
				"halted":  halted,
			})
		}))

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)
	return handler.ServeHTTP
}

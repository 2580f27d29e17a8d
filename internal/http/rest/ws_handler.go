package rest

import (
	"net/http"

	"github.com/bwise1/voteledger/util"
	"github.com/bwise1/voteledger/util/values"
	"github.com/rs/zerolog/log"
)

func (api *API) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := util.GetUserIDFromContext(r.Context())
	if err != nil {
		writeErrorResponse(w, err, values.NotAuthorised, "not-authorized")
		return
	}
	log.Debug().Str("user_id", userID.String()).Msg("websocket connection requested")
	api.Deps.Hub.HandleConnections(w, r, userID)
}

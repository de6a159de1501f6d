package coparent

import (
	"context"
	"net/http"

	"github.com/petlink/backend/internal/logging"
)

// CompanionDirectory reads the signed-in parent's companions from
// GET /v1/companions. It satisfies CompanionRefresher.
type CompanionDirectory struct {
	Client *Client
	Tokens TokenProvider
}

// RefreshCompanions returns the ids of the caller's companions in server order.
func (d *CompanionDirectory) RefreshCompanions(ctx context.Context) (ids []string, err error) {
	ctx, span := logging.StartSpan(ctx, "coparent.refresh_companions")
	defer func() {
		span.Fail(err)
		span.End()
	}()

	token, err := accessToken(ctx, d.Tokens)
	if err != nil {
		return nil, err
	}

	body, err := d.Client.do(ctx, http.MethodGet, "/v1/companions", nil, token)
	if err != nil {
		return nil, err
	}

	ids = []string{}
	seen := make(map[string]struct{})
	for _, item := range unwrapList(body, "companions") {
		id := firstString(parseObject(item), "id", "_id", "companionId")
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

var _ CompanionRefresher = (*CompanionDirectory)(nil)

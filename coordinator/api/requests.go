package api

import (
	"github.com/absmach/flcoord/pkg/api"
	apiutil "github.com/absmach/supermq/api/http/util"
)

type emptyReq struct{}

type listClientsReq struct {
	offset, limit uint64
}

func (req listClientsReq) validate() error {
	if req.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}

type modelReq struct {
	withParameters bool
}

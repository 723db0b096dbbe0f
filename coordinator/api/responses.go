package api

import (
	"net/http"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*cancelResponse)(nil)
	_ supermq.Response = (*historyResponse)(nil)
	_ supermq.Response = (*listClientsResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
)

type statusResponse struct {
	coordinator.RunStatus
}

func (res statusResponse) Code() int {
	return http.StatusOK
}

func (res statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res statusResponse) Empty() bool {
	return false
}

type cancelResponse struct{}

func (res cancelResponse) Code() int {
	return http.StatusAccepted
}

func (res cancelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res cancelResponse) Empty() bool {
	return true
}

type historyResponse struct {
	fl.Snapshot
}

func (res historyResponse) Code() int {
	return http.StatusOK
}

func (res historyResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res historyResponse) Empty() bool {
	return false
}

type listClientsResponse struct {
	clients.Page
}

func (res listClientsResponse) Code() int {
	return http.StatusOK
}

func (res listClientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res listClientsResponse) Empty() bool {
	return false
}

type modelResponse struct {
	coordinator.ModelSnapshot
	Parameters string `json:"parameters,omitempty"`
}

func (res modelResponse) Code() int {
	return http.StatusOK
}

func (res modelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res modelResponse) Empty() bool {
	return false
}

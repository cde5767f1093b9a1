//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/conf"
	"ShiftGuard/internal/data"
	"ShiftGuard/internal/metrics"
	"ShiftGuard/internal/server"
	"ShiftGuard/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Resilience, *conf.Notify, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		metrics.ProviderSet,
		newMaintenance,
		wire.Bind(new(service.AuditSink), new(*data.AuditLogger)),
		wire.Bind(new(service.AlertNotifier), new(*data.WebhookNotifier)),
		newApp,
	))
}

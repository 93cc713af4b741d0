package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	app "github.com/okian/tapbattle/internal/app"
	"github.com/okian/tapbattle/internal/config"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("TAPBATTLE_ADDR", ":8080")
			_ = os.Setenv("TAPBATTLE_FLUSH_EVERY_TAPS", "7")
			defer func() {
				_ = os.Unsetenv("TAPBATTLE_ADDR")
				_ = os.Unsetenv("TAPBATTLE_FLUSH_EVERY_TAPS")
			}()

			convey.Convey("Then it is loaded over the defaults", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.FlushEveryTaps, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When servers are built before the service starts", func() {
			_, _, err := newServers(app.New(), config.New())

			convey.Convey("Then an error is returned", func() {
				convey.So(err, convey.ShouldEqual, app.ErrNotStarted)
			})
		})

		convey.Convey("When servers are built for a started service", func() {
			cfg := config.New()
			cfg.DatabaseDSN = fmt.Sprintf("file:main%d?mode=memory&cache=shared", time.Now().UnixNano())
			svc := app.New(app.OptionsFromConfig(cfg)...)
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()
			apiApp, wsServer, err := newServers(svc, cfg)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the API answers health checks", func() {
				resp, err := apiApp.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("Then the websocket server listens on the realtime address", func() {
				convey.So(wsServer.Addr, convey.ShouldEqual, cfg.RealtimeAddr)
				convey.So(wsServer.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			})
		})

		convey.Convey("When run is cancelled", func() {
			cfg := config.New()
			cfg.Addr = "127.0.0.1:0"
			cfg.RealtimeAddr = "127.0.0.1:0"
			cfg.DatabaseDSN = fmt.Sprintf("file:run%d?mode=memory&cache=shared", time.Now().UnixNano())
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()

			convey.Convey("Then it shuts down cleanly", func() {
				convey.So(run(ctx, cfg), convey.ShouldBeNil)
			})
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the metrics registry", t, func() {
		updateSystemMetrics()

		convey.Convey("Then system gauges are gathered", func() {
			families, err := metrics.GetRegistry().Gather()
			convey.So(err, convey.ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			convey.So(fmt.Sprint(names), convey.ShouldContainSubstring, "goroutine")
		})
	})
}

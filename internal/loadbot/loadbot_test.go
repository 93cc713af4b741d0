package loadbot_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tapbattle/internal/adapters/http/api"
	service "github.com/okian/tapbattle/internal/app"
	"github.com/okian/tapbattle/internal/config"
	"github.com/okian/tapbattle/internal/loadbot"
	"github.com/okian/tapbattle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var dbSeq atomic.Int64

type target struct {
	svc *service.Service
	api *httptest.Server
	ws  *httptest.Server
}

func startTarget(ctx context.Context) *target {
	svc := service.New(
		service.WithDatabase(config.DriverSQLite, fmt.Sprintf("file:loadbot%d?mode=memory&cache=shared", dbSeq.Add(1))),
		service.WithMatchmaking(50*time.Millisecond, time.Second),
	)
	So(svc.Start(ctx), ShouldBeNil)
	deps, err := svc.APIDependencies()
	So(err, ShouldBeNil)
	gw, err := svc.Gateway()
	So(err, ShouldBeNil)

	// fiber apps are not http.Handlers; serve them through their own listener.
	app := api.NewServer(deps).App()
	apiSrv := httptest.NewUnstartedServer(nil)
	go func() { _ = app.Listener(apiSrv.Listener) }()
	apiSrv.URL = "http://" + apiSrv.Listener.Addr().String()

	return &target{svc: svc, api: apiSrv, ws: httptest.NewServer(gw)}
}

func (t *target) close() {
	t.ws.Close()
	_ = t.api.Listener.Close()
	t.svc.Stop()
}

func (t *target) config(players int) *loadbot.Config {
	return &loadbot.Config{
		APIURL:        t.api.URL,
		WSURL:         "ws" + strings.TrimPrefix(t.ws.URL, "http"),
		Players:       players,
		TapsPerPlayer: 5,
		TapInterval:   10 * time.Millisecond,
		Timeout:       5 * time.Second,
		SettleDelay:   200 * time.Millisecond,
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running server", t, func() {
		tg := startTarget(ctx)
		defer tg.close()

		Convey("When bots only tap", func() {
			summary, err := loadbot.Run(ctx, tg.config(4))

			Convey("Then every accepted tap is persisted", func() {
				So(err, ShouldBeNil)
				So(summary.PlayersStarted, ShouldEqual, 4)
				So(summary.TapsSent, ShouldEqual, 20)
				So(summary.TapsAccepted, ShouldEqual, 20)
				So(summary.Verified, ShouldEqual, 4)
				So(summary.Mismatched, ShouldEqual, 0)
			})
		})

		Convey("When two bots queue for PvP", func() {
			cfg := tg.config(2)
			cfg.PvP = true
			summary, err := loadbot.Run(ctx, cfg)

			Convey("Then they are matched and fight to the end", func() {
				So(err, ShouldBeNil)
				So(summary.BattlesStarted, ShouldEqual, 2)
				So(summary.BattlesCompleted, ShouldEqual, 2)
			})
		})
	})

	Convey("Given no server", t, func() {
		_, err := loadbot.Run(ctx, &loadbot.Config{
			APIURL:  "http://127.0.0.1:1",
			WSURL:   "ws://127.0.0.1:1",
			Players: 1,
			Timeout: time.Second,
		})

		Convey("Then the health check fails", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

// Command pingpong is a small demonstration of netkit: a server that
// answers pings and relays broadcasts, and a client that sends them.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eddy-M-K/netkit"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type msgType uint32

const (
	serverAccept msgType = iota
	serverPing
	messageAll
	serverMessage
)

var logLevel string

func main() {
	root := &cobra.Command{
		Use:   "pingpong",
		Short: "netkit ping/broadcast demo",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn or error")
	root.AddCommand(serverCmd(), clientCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: hclog.LevelFromString(logLevel),
	})
}

func serverCmd() *cobra.Command {
	var (
		port        uint16
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the demo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger("server")
			reg := prometheus.NewRegistry()

			h := &handler{logger: logger}
			server := netkit.NewServer[msgType](h,
				netkit.LoggerOption(logger),
				netkit.MetricsOption(reg),
			)
			h.server = server

			if metricsAddr != "" {
				go serveMetrics(logger, metricsAddr, reg)
			}

			if err := server.Start(port); err != nil {
				return err
			}
			defer server.Stop()

			for {
				if _, err := server.Update(ctx, 0, true); err != nil {
					logger.Info("shutting down server")
					return nil
				}
			}
		},
	}
	cmd.Flags().Uint16VarP(&port, "port", "p", 60000, "port to listen on")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func serveMetrics(logger hclog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "addr", addr, "error", err)
	}
}

type handler struct {
	netkit.NopHandler[msgType]
	server *netkit.Server[msgType]
	logger hclog.Logger
}

func (h *handler) OnClientConnect(peer netkit.Peer) bool {
	return true
}

func (h *handler) OnClientValidated(peer netkit.Peer) {
	_ = h.server.MessageClient(peer.ID, netkit.NewMessage(serverAccept))
}

func (h *handler) OnClientDisconnect(peer netkit.Peer) {
	h.logger.Info("client gone", "id", peer.ID)
}

func (h *handler) OnMessage(peer netkit.Peer, msg *netkit.Message[msgType]) {
	switch msg.Type() {
	case serverPing:
		// bounce the client's timestamp straight back
		_ = h.server.MessageClient(peer.ID, msg)
	case messageAll:
		out := netkit.NewMessage(serverMessage)
		_ = out.Push(peer.ID)
		h.server.MessageAllClients(out, peer.ID)
	}
}

func clientCmd() *cobra.Command {
	var (
		host     string
		port     uint16
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to the demo server and ping it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := netkit.NewClient[msgType](netkit.LoggerOption(newLogger("client")))
			if err := client.Connect(ctx, host, port); err != nil {
				return err
			}
			defer client.Disconnect()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for n := 0; ; n++ {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}

				if !client.IsConnected() {
					return errors.New("server down")
				}

				var msg *netkit.Message[msgType]
				if n%5 == 4 {
					msg = netkit.NewMessage(messageAll)
				} else {
					msg = netkit.NewMessage(serverPing)
					_ = msg.Push(time.Now().UnixNano())
				}
				_ = client.Send(msg)

				drain(client.Incoming())
			}
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().Uint16VarP(&port, "port", "p", 60000, "server port")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between messages")
	return cmd
}

func drain(q *netkit.Queue[netkit.OwnedMessage[msgType]]) {
	for {
		om, ok := q.PopFront()
		if !ok {
			return
		}

		switch om.Msg.Type() {
		case serverAccept:
			fmt.Println("server accepted connection")
		case serverPing:
			var sent int64
			if err := om.Msg.Pop(&sent); err == nil {
				fmt.Printf("ping: %v\n", time.Since(time.Unix(0, sent)))
			}
		case serverMessage:
			var from uint32
			if err := om.Msg.Pop(&from); err == nil {
				fmt.Printf("hello from [%d]\n", from)
			}
		}
	}
}

// Command flexsdr-cli is the composition root for this module, playing
// the role the teacher's cmd/bridge/main.go played for a single
// WebSocket-bridged radio: it wires config, discovery, sessions, the
// optional HTTP surface (metrics + consoleapi), and graceful shutdown
// together, generalized into spf13/cobra subcommands instead of one
// fixed main().
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	flexsdr "github.com/flexradio/flex-sdr"
	"github.com/flexradio/flex-sdr/internal/config"
	"github.com/flexradio/flex-sdr/internal/consoleapi"
	"github.com/flexradio/flex-sdr/internal/session"
)

// newBroadcaster builds a consoleapi.Broadcaster whose audio delivery
// honors the configured stream_overflow_policy (spec §6), instead of
// always dropping under back-pressure regardless of what the operator
// configured.
func newBroadcaster(cfg config.Config) *consoleapi.Broadcaster {
	return consoleapi.NewBroadcasterWithPolicy(session.ParseOverflowPolicy(cfg.StreamOverflowPolicy))
}

func newFacade(cfg config.Config) (*flexsdr.Facade, error) {
	return flexsdr.New(cfg)
}

func main() {
	root := &cobra.Command{
		Use:   "flexsdr-cli",
		Short: "discover, connect to, and observe FlexRadio SDRs",
		// All configuration (ports, TLS, timeouts, ICE range, ...) comes
		// from config.Load()'s own pflag+viper flags; subcommands below
		// take only a bare positional target so their argv never
		// collides with that flag set.
		SilenceUsage: true,
	}
	root.AddCommand(discoverCmd(), connectCmd(), streamDumpCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "print radios as they are discovered (spec §4.7)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			facade, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer facade.Close()

			ctx, cancel := signalContext()
			defer cancel()
			facade.Start(ctx)

			for ev := range facade.Radios(ctx) {
				b, _ := json.Marshal(ev)
				fmt.Println(string(b))
			}
			return nil
		},
	}
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <serial>",
		Short: "open a session against a discovered radio and print status lines as object-graph events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			facade, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer facade.Close()

			ctx, cancel := signalContext()
			defer cancel()
			facade.Start(ctx)

			if err := waitDiscovered(ctx, facade, args[0]); err != nil {
				return err
			}

			bc := newBroadcaster(cfg)
			sess, err := facade.Open(ctx, args[0], bc)
			if err != nil {
				return err
			}
			defer sess.Close()

			<-ctx.Done()
			return nil
		},
	}
}

func streamDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream-dump <serial>",
		Short: "connect and print decoded stream-plane samples (FFT/waterfall/meter/audio) as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			facade, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer facade.Close()

			ctx, cancel := signalContext()
			defer cancel()
			facade.Start(ctx)

			if err := waitDiscovered(ctx, facade, args[0]); err != nil {
				return err
			}

			bc := newBroadcaster(cfg)
			sess, err := facade.Open(ctx, args[0], bc)
			if err != nil {
				return err
			}
			defer sess.Close()

			ch := bc.Subscribe()
			defer bc.Unsubscribe(ch)
			for {
				select {
				case raw, ok := <-ch:
					if !ok {
						return nil
					}
					fmt.Println(string(raw))
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run discovery plus the HTTP surface (metrics, consoleapi WebSocket/WebRTC observation)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			facade, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer facade.Close()

			ctx, cancel := signalContext()
			defer cancel()
			facade.Start(ctx)

			mux := facade.Mux()
			webrtcSrv := consoleapi.New(consoleapi.Options{
				ICEPortStart: cfg.ICEPortStart,
				ICEPortEnd:   cfg.ICEPortEnd,
				STUN:         cfg.StunURLs,
				NAT1To1IPs:   cfg.NAT1To1IPs,
			})
			mux.HandleFunc("/rtc/offer", webrtcSrv.OfferHandler)
			mux.HandleFunc("/ws/radio", func(w http.ResponseWriter, r *http.Request) {
				serial := r.URL.Query().Get("serial")
				if serial == "" {
					http.Error(w, "missing serial query parameter", http.StatusBadRequest)
					return
				}
				bc := newBroadcaster(cfg)
				sess, err := facade.Open(r.Context(), serial, bc)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadGateway)
					return
				}
				defer sess.Close()
				webrtcSrv.Attach(serial, sess, bc)
				defer webrtcSrv.Detach(serial)
				consoleapi.NewWSHandler(sess, bc)(w, r)
			})

			if cfg.HTTPPort == 0 {
				<-ctx.Done()
				return nil
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
				Handler:           facade.Middleware(mux),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				log.Printf("[flexsdr-cli] listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("[flexsdr-cli] server error: %v", err)
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// waitDiscovered blocks until serial appears in the live discovery set
// or ctx is done, so connect/stream-dump can Open immediately after.
func waitDiscovered(ctx context.Context, facade *flexsdr.Facade, serial string) error {
	for _, r := range facade.ListRadios() {
		if r.Serial == serial {
			return nil
		}
	}
	events := facade.Radios(ctx)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return fmt.Errorf("discovery closed before radio %q appeared", serial)
			}
			for _, r := range facade.ListRadios() {
				if r.Serial == serial {
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package main

import (
	"time"

	"github.com/spf13/cobra"

	"deskmirror/internal/compress"
	"deskmirror/internal/metrics"
	"deskmirror/internal/transport"
	"deskmirror/internal/viewer"
)

func viewCmd() *cobra.Command {
	var (
		addr, kindName, secret, codecName, httpAddr string
		timeout                                     time.Duration
		stats                                       bool
		iceServers                                  []string
	)
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Connect to a source and mirror its screen",
		Long: `Connect to a deskmirror source. The reconstructed screen is served as
/frame.png on --http and input events can be posted to /input there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := transport.ParseKind(kindName)
			if err != nil {
				return err
			}
			codec, err := compress.ParseKind(codecName)
			if err != nil {
				return err
			}
			v, err := viewer.Dial(cmd.Context(), viewer.Config{
				Addr:             addr,
				Transport:        kind,
				Net:              transport.Options{ICEServers: iceServers},
				Secret:           secret,
				Codec:            codec,
				HTTPAddr:         httpAddr,
				HandshakeTimeout: timeout,
				Stats:            stats,
				Metrics:          metrics.New(),
			})
			if err != nil {
				return err
			}
			return v.Run(cmd.Context())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&addr, "addr", "127.0.0.1:7900", "Source address")
	fl.StringVar(&kindName, "transport", "tcp", "Session transport (tcp, tls, quic, ws, webrtc)")
	fl.StringVar(&secret, "secret", "", "Shared secret (required)")
	fl.StringVar(&codecName, "codec", "zstd", "Frame codec; must match the source")
	fl.StringVar(&httpAddr, "http", "127.0.0.1:7902", "HTTP address for /frame.png, /input and /metrics (empty disables)")
	fl.DurationVar(&timeout, "handshake-timeout", 10*time.Second, "Connect and authenticate deadline")
	fl.BoolVar(&stats, "stats", false, "Log pipeline stats every 5 seconds")
	fl.StringSliceVar(&iceServers, "ice-server", nil, "STUN/TURN URL for the webrtc transport (repeatable)")
	cmd.MarkFlagRequired("secret")
	return cmd
}

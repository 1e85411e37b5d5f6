// Command gorent downloads a single torrent's content, sequentially,
// from its UDP tracker(s) and peers, verifying every piece against its
// declared SHA-1 hash before writing it to disk. Grounded on the
// teacher's main.go top-level flow (open metafile, announce, download,
// save) restructured around internal/metainfo, internal/trackerclient,
// internal/peer, internal/driver and internal/writer, and on
// uber-kraken's cmd/root.go cobra.Command shape (persistent flags, a
// Run closure calling a start()) in place of the teacher's flag
// package and bare log.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	gorentconfig "github.com/coreswarm/gorent/internal/config"
	"github.com/coreswarm/gorent/internal/driver"
	"github.com/coreswarm/gorent/internal/metainfo"
	"github.com/coreswarm/gorent/internal/peer"
	"github.com/coreswarm/gorent/internal/peerid"
	"github.com/coreswarm/gorent/internal/trackerclient"
	"github.com/coreswarm/gorent/internal/writer"
)

// Exit codes per spec.md §6.
const (
	exitSuccess            = 0
	exitMetafileError      = 1
	exitNoTrackerReachable = 2
	exitNoPeerCompleted    = 3
	exitIOError            = 4
)

var (
	torrentFilePath string
	downloadPath    string
	peerIDFlag      string
	logFilePath     string
	configPath      string

	rootCmd = &cobra.Command{
		Use:   "gorent",
		Short: "gorent downloads a single torrent's content to disk",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(run())
		},
	}
)

func init() {
	rootCmd.Flags().StringVar(&torrentFilePath, "torrent-file-path", "", "path to the .torrent metafile (required)")
	rootCmd.Flags().StringVar(&downloadPath, "download-path", ".", "directory to write downloaded content into")
	rootCmd.Flags().StringVar(&peerIDFlag, "peer-id", "", "literal 20-byte peer id to present in handshakes and announces; random if omitted")
	rootCmd.Flags().StringVar(&logFilePath, "log-file-path", "", "file to append logs to; stderr if omitted")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	rootCmd.MarkFlagRequired("torrent-file-path")
}

func main() {
	rootCmd.Execute()
}

func run() int {
	logger, sync, err := newLogger(logFilePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIOError
	}
	defer sync()

	cfg, err := gorentconfig.Load(configPath)
	if err != nil {
		logger.Errorf("load config: %s", err)
		return exitIOError
	}

	ourID, err := resolvePeerID(peerIDFlag)
	if err != nil {
		logger.Errorf("peer id: %s", err)
		return exitMetafileError
	}

	tor, err := loadTorrent(torrentFilePath)
	if err != nil {
		logger.Errorf("load metafile: %s", err)
		return exitMetafileError
	}

	ctx := context.Background()

	endpoints, err := tor.ResolveTrackerEndpoints(metainfo.NetResolver{})
	if err != nil {
		logger.Errorf("resolve trackers: %s", err)
		return exitNoTrackerReachable
	}

	totalLength, err := tor.GetTotalLength()
	if err != nil {
		logger.Errorf("metafile: %s", err)
		return exitMetafileError
	}

	tc := trackerclient.New(trackerclient.Config{Logger: logger})
	peerAddrs, err := announceAll(ctx, tc, endpoints, tor, ourID, totalLength)
	if err != nil {
		logger.Errorf("announce: %s", err)
		return exitNoTrackerReachable
	}

	w, err := writer.Create(tor, downloadPath)
	if err != nil {
		logger.Errorf("create output: %s", err)
		return exitIOError
	}

	peerCfg := peer.Config{
		DialTimeout:      cfg.Peer.DialTimeout,
		HandshakeTimeout: cfg.Peer.HandshakeTimeout,
		IdleTimeout:      cfg.Peer.IdleTimeout,
		Logger:           logger,
	}
	dial := func(ctx context.Context, addr string, infoHash metainfo.InfoHash, id peerid.ID) (driver.Session, error) {
		return peer.Dial(ctx, peerCfg, addr, infoHash, id)
	}

	d := driver.New(driver.Config{Logger: logger}, dial, ourID)
	if err := d.Download(ctx, tor, peerAddrs, w); err != nil {
		w.Abort()
		logger.Errorf("download: %s", err)
		return exitCodeFor(err)
	}

	if err := w.Close(); err != nil {
		logger.Errorf("close output: %s", err)
		return exitIOError
	}

	return exitSuccess
}

func loadTorrent(path string) (*metainfo.Torrent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return metainfo.Decode(f)
}

func resolvePeerID(flagValue string) (peerid.ID, error) {
	if flagValue == "" {
		return peerid.Random()
	}
	return peerid.FromString(flagValue)
}

// announceAll tries each resolved tracker endpoint in turn, returning the
// first successful announce's peer list. Per spec.md §6, exhausting every
// endpoint without a usable response is a TrackerUnreachable condition.
func announceAll(ctx context.Context, tc *trackerclient.Client, endpoints []metainfo.Endpoint, tor *metainfo.Torrent, ourID peerid.ID, totalLength int64) ([]string, error) {
	params := trackerclient.AnnounceParams{
		InfoHash: [20]byte(tor.InfoHash),
		PeerID:   [20]byte(ourID),
		Left:     totalLength,
		Event:    trackerclient.EventStarted,
	}

	var lastErr error
	for _, ep := range endpoints {
		addr := ep.String()
		resp, err := tc.Announce(ctx, addr, params)
		if err != nil {
			lastErr = err
			continue
		}
		addrs := make([]string, 0, len(resp.Peers))
		for _, p := range resp.Peers {
			addrs = append(addrs, p.String())
		}
		return addrs, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no trackers declared in metafile")
	}
	return nil, lastErr
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, driver.ErrNoProgress) {
		return exitNoPeerCompleted
	}
	return exitIOError
}

func newLogger(path string) (*zap.SugaredLogger, func(), error) {
	var ws zapcore.WriteSyncer
	if path == "" {
		ws = zapcore.Lock(os.Stderr)
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		ws = zapcore.AddSync(f)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), ws, zap.InfoLevel)
	logger := zap.New(core)
	return logger.Sugar(), func() { logger.Sync() }, nil
}

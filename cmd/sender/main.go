// Command sender is the STP sending endpoint: it reads a text file,
// streams it to a receiver over a connected UDP loopback socket, and exits
// once the receiver has FIN-ACKed the transfer.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rs/xid"
	"github.com/stp-proto/gostp/internal/cliargs"
	"github.com/stp-proto/gostp/internal/config"
	"github.com/stp-proto/gostp/pkg/stp"
)

// maxTransferBytes is spec.md §9 open question 4's acknowledged limitation:
// the seqno->index map uses raw seqnos as keys, so a transfer spanning more
// than the sequence-number half-space would collide.
const maxTransferBytes = 1<<15 - 1

func main() {
	configPath := flag.String("config", "", "optional INI file of default flag values")
	seedFlag := flag.Int64("seed", 0, "loss simulator PRNG seed (0 picks one from the current time)")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	verbose := flag.Bool("v", false, "enable debug logging")
	showProgress := flag.Bool("progress", true, "show a terminal progress bar")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	runID := xid.New()
	logger := log.WithField("run", runID.String())

	defaults, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load -config")
	}

	args := flag.Args()
	if len(args) != 7 {
		fmt.Fprintln(os.Stderr, "usage: sender [flags] <sender_port> <rcvr_port> <txt_file_to_send> <max_win> <rto> <flp> <rlp>")
		os.Exit(1)
	}

	senderPort, err := cliargs.ParsePort(args[0])
	exitOnConfigError(err)
	rcvrPort, err := cliargs.ParsePort(args[1])
	exitOnConfigError(err)
	fileName, err := cliargs.ParseFileToSend(args[2])
	exitOnConfigError(err)
	maxWin, err := cliargs.ParseMaxWin(args[3])
	exitOnConfigError(err)
	rto, err := cliargs.ParseRto(args[4])
	exitOnConfigError(err)
	flp, err := cliargs.ParseProb(args[5])
	exitOnConfigError(err)
	rlp, err := cliargs.ParseProb(args[6])
	exitOnConfigError(err)

	data, err := os.ReadFile(fileName)
	if err != nil {
		logger.WithError(err).Fatal("failed to read input file")
	}
	if len(data) > maxTransferBytes {
		exitOnConfigError(&stp.ConfigError{Reason: fmt.Sprintf("file too large for STP's sequence-number space: %d bytes (max %d)", len(data), maxTransferBytes)})
	}

	seed := *seedFlag
	if seed == 0 {
		seed = int64(time.Now().UnixNano())
	}
	if defaults.Seed != 0 && *seedFlag == 0 {
		seed = defaults.Seed
	}

	transport, err := stp.DialLoopback(senderPort, rcvrPort)
	if err != nil {
		logger.WithError(err).Fatal("failed to open socket")
	}

	eventLog, err := stp.NewEventLog("sender", stp.SystemClock{})
	if err != nil {
		logger.WithError(err).Fatal("failed to open event log")
	}

	var metrics *stp.Metrics
	addr := *metricsAddr
	if addr == "" {
		addr = defaults.Metrics
	}
	if addr != "" {
		metrics = stp.NewMetrics("sender")
		metrics.Serve(addr)
		logger.Infof("serving metrics on %s", addr)
	}

	var progress stp.ProgressReporter
	if *showProgress {
		progress = stp.NewProgressBar(len(data))
	}

	sender := stp.NewSender(stp.SenderConfig{
		MaxWin:    maxWin,
		Rto:       time.Duration(rto) * time.Millisecond,
		Flp:       flp,
		Rlp:       rlp,
		Transport: transport,
		Loss:      stp.NewLossSimulator(seed),
		Log:       eventLog,
		Metrics:   metrics,
		Progress:  progress,
	})

	if err := sender.Run(data); err != nil {
		logger.WithError(err).Error("transfer failed")
		os.Exit(1)
	}
	logger.Info("transfer complete")
}

func exitOnConfigError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

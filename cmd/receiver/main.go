// Command receiver is the STP receiving endpoint: it accepts a handshake,
// reassembles an in-order byte stream from a possibly-reordered UDP
// loopback socket, writes it to a file, and exits after its 2*MSL quiet
// period following FIN.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/rs/xid"
	"github.com/stp-proto/gostp/internal/cliargs"
	"github.com/stp-proto/gostp/internal/config"
	"github.com/stp-proto/gostp/pkg/stp"
)

func main() {
	configPath := flag.String("config", "", "optional INI file of default flag values")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	verbose := flag.Bool("v", false, "enable debug logging")
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
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: receiver [flags] <rcvr_port> <sender_port> <txt_file_received> <max_win>")
		os.Exit(1)
	}

	rcvrPort, err := cliargs.ParsePort(args[0])
	exitOnConfigError(err)
	senderPort, err := cliargs.ParsePort(args[1])
	exitOnConfigError(err)
	outFile := args[2]
	maxWin, err := cliargs.ParseMaxWin(args[3])
	exitOnConfigError(err)

	transport, err := stp.DialLoopback(rcvrPort, senderPort)
	if err != nil {
		logger.WithError(err).Fatal("failed to open socket")
	}

	eventLog, err := stp.NewEventLog("receiver", stp.SystemClock{})
	if err != nil {
		logger.WithError(err).Fatal("failed to open event log")
	}

	sink, err := stp.NewFileSink(outFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to open output file")
	}

	var metrics *stp.Metrics
	addr := *metricsAddr
	if addr == "" {
		addr = defaults.Metrics
	}
	if addr != "" {
		metrics = stp.NewMetrics("receiver")
		metrics.Serve(addr)
		logger.Infof("serving metrics on %s", addr)
	}

	receiver := stp.NewReceiver(stp.ReceiverConfig{
		MaxWin:    maxWin,
		Transport: transport,
		Log:       eventLog,
		Metrics:   metrics,
		Sink:      sink,
	})

	if err := receiver.Run(); err != nil {
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

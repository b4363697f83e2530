// Command ark-subd serves a storage substrate over gRPC.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rrauch/ark/storage"
	"github.com/rrauch/ark/storage/grpcsub"
	"github.com/rrauch/ark/storage/localfs"
)

func main() {
	fs := flag.NewFlagSet("ark-subd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7711", "listen address")
	backend := fs.String("backend", "localfs", "substrate backend (localfs, memory)")
	root := fs.String("root", "", "storage root directory (localfs backend)")
	logLevel := fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	_ = fs.Parse(os.Args[1:])

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.SetLevel(level)

	var substrate storage.Substrate
	switch *backend {
	case "localfs":
		if *root == "" {
			fmt.Fprintln(os.Stderr, "localfs backend requires -root")
			os.Exit(2)
		}
		store, err := localfs.New(*root)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		substrate = store
	case "memory":
		substrate = storage.NewMemory()
	default:
		fmt.Fprintf(os.Stderr, "unknown backend %q\n", *backend)
		os.Exit(2)
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcsub.RegisterSubstrateServer(s, &grpcsub.Server{Substrate: substrate})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stop
		log.WithField("signal", sig.String()).Info("shutting down")
		s.GracefulStop()
	}()

	log.WithFields(logrus.Fields{
		"addr":    lis.Addr().String(),
		"backend": *backend,
	}).Info("ark-subd listening")
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

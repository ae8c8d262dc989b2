package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/livepeer/clip-job-server/api"
	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/fetcher"
	"github.com/livepeer/clip-job-server/log"
	"github.com/livepeer/clip-job-server/metrics"
	"github.com/livepeer/clip-job-server/registry"
	"github.com/livepeer/clip-job-server/renderer"
	"github.com/livepeer/clip-job-server/selector"
	"github.com/livepeer/clip-job-server/transcriber"
	"github.com/livepeer/clip-job-server/uploader"
	"github.com/livepeer/clip-job-server/worker"
)

func main() {
	cli := parseFlags(os.Args[1:])

	if cli.version {
		fmt.Printf("clip job server version: %s\n", config.Version)
		return
	}

	ctx, cancel := newRootContext()
	defer cancel()

	reg := newRegistry(cli.cli)
	defer reg.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return api.ListenAndServe(ctx, cli.cli, reg)
	})
	group.Go(func() error {
		return metrics.ListenAndServe(cli.cli.PromPort)
	})
	group.Go(func() error {
		return handleSignals(ctx)
	})

	if err := group.Wait(); err != nil {
		glog.Infof("shutdown complete, reason: %s", err)
	}
}

type parsedFlags struct {
	cli     config.Cli
	version bool
}

// parseFlags mirrors the teacher's ff.Parse + CATALYST_API_ env-var-prefix
// idiom, scoped down to this server's own CLIPS_ prefixed settings.
func parseFlags(args []string) parsedFlags {
	fs := flag.NewFlagSet("clip-job-server", flag.ExitOnError)
	cli := config.Cli{}

	fs.StringVar(&cli.HTTPAddress, "http-addr", "0.0.0.0:8989", "Address to bind the HTTP API to")
	fs.StringVar(&cli.APIToken, "api-token", "", "Shared-secret value callers must send in X-API-KEY")
	fs.StringVar(&cli.ScratchDir, "scratch-dir", os.TempDir(), "Base directory each job's scratch files are written beneath")

	fs.IntVar(&cli.MaxConcurrentJobs, "max-concurrent-jobs", config.DefaultMaxConcurrentJobs, "Maximum number of jobs allowed to run simultaneously")
	fs.IntVar(&cli.MaxQueueDepth, "max-queue-depth", config.DefaultMaxQueueDepth, "Maximum number of jobs allowed to sit queued before POST /jobs returns 429")
	fs.IntVar(&cli.JobTimeoutSecs, "job-timeout-secs", config.DefaultJobTimeoutSecs, "Overall wall-clock budget for one job")

	fs.StringVar(&cli.StorageURL, "storage-url", "", "Base go-tools/drivers OS URL clips are fetched from / uploaded to, e.g. s3://bucket/prefix")

	fs.StringVar(&cli.WhisperBinary, "whisper-binary", "whisper", "Path to the speech-to-text engine binary")
	fs.IntVar(&cli.TranscribeTimeoutS, "transcribe-timeout-secs", config.DefaultTranscribeTimeoutSecs, "Wall-clock cap for transcribing a single source")

	fs.StringVar(&cli.FFmpegBinary, "ffmpeg-binary", "ffmpeg", "Path to the media encoder binary")

	fs.StringVar(&cli.LLMAPIURL, "llm-api-url", "", "Chat-completions endpoint for the Selector's LLM strategy; LLM path is skipped entirely when unset")
	fs.StringVar(&cli.LLMAPIKey, "llm-api-key", "", "Bearer token for the LLM endpoint")
	fs.StringVar(&cli.LLMModel, "llm-model", "", "Model name passed in the LLM chat-completions request")

	fs.IntVar(&cli.PromPort, "prom-port", 9090, "Port to serve Prometheus /metrics on")

	version := fs.Bool("version", false, "print application version")
	verbosity := fs.String("v", "", "Log verbosity (glog levels)")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("CLIPS")); err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	if *verbosity != "" {
		if err := flag.Lookup("v").Value.Set(*verbosity); err != nil {
			glog.Fatal(err)
		}
	}

	return parsedFlags{cli: cli, version: *version}
}

// newRootContext returns the cancellable root context. Signals are not
// watched here: handleSignals returns an error on SIGINT/SIGTERM/SIGQUIT,
// which cancels the errgroup's derived context.
func newRootContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-c:
		return fmt.Errorf("caught signal=%v", s)
	case <-ctx.Done():
		return nil
	}
}

// newRegistry wires the Fetch->Transcribe->Select->Render->Upload pipeline
// into a single worker.Worker and hands it to the Registry as its Executor.
func newRegistry(cli config.Cli) *registry.Registry {
	f := fetcher.New(fetcher.NewStorageClient(), cli.StorageURL)
	tr := transcriber.New(cli.WhisperBinary, time.Duration(cli.TranscribeTimeoutS)*time.Second)

	var llm *selector.LLMClient
	if cli.LLMAPIURL != "" {
		llm = selector.NewLLMClient(cli.LLMAPIURL, cli.LLMAPIKey, cli.LLMModel)
	} else {
		log.LogNoRequestID("no llm-api-url configured, Selector will only use the rule-based and fallback strategies")
	}
	sel := selector.New(llm)

	r := renderer.New(cli.FFmpegBinary)
	u := uploader.New(uploader.NewStorageClient())

	w := worker.New(f, tr, sel, r, u, cli.ScratchDir, cli.StorageURL)

	return registry.New(cli.MaxConcurrentJobs, cli.MaxQueueDepth, time.Duration(cli.JobTimeoutSecs)*time.Second, w.Run)
}

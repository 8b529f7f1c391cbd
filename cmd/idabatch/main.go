package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/bryanwahyu/automaton-bindiff/internal/config"
	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/executor/ida"
	minioStore "github.com/bryanwahyu/automaton-bindiff/internal/infra/storage"
	"github.com/bryanwahyu/automaton-bindiff/internal/logging"
)

const version = "1.0.0"

const usageLine = "[Usage]: idabatch BINARY1_ABSPATH BINARY2_ABSPATH RESULT_DIRECTORY"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without os.Exit, supaya gampang ditest
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("idabatch", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: idabatch [options] BINARY1_ABSPATH BINARY2_ABSPATH RESULT_DIRECTORY\n\n")
		fmt.Fprintf(stderr, "Disassembles both binaries with IDA in batch mode, exports them with BinExport,\n")
		fmt.Fprintf(stderr, "then writes a listing diff and a BinDiff database into RESULT_DIRECTORY.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExit codes:\n")
		fmt.Fprintf(stderr, "  0   success\n")
		fmt.Fprintf(stderr, "  -1  missing dependency or disassembly failure\n")
		fmt.Fprintf(stderr, "  -2  wrong number of arguments\n")
		fmt.Fprintf(stderr, "  -3  export, diff or bindiff failure\n")
	}

	configPath := fs.StringP("config", "c", "", "YAML config file (tool paths, timeouts, minio)")
	jsonFlag := fs.BoolP("json", "j", false, "Print the run result (steps, stats) as JSON on stdout")
	uploadFlag := fs.BoolP("upload", "u", false, "Upload the result files to the configured MinIO bucket")
	disasmFlag := fs.StringP("disassembler", "d", "", "Override disassembler selection: auto, idat or idat64")
	versionFlag := fs.BoolP("version", "V", false, "Print version information")
	helpFlag := fs.BoolP("help", "h", false, "Show this help message")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, usageLine)
		return ida.ExitUsage
	}
	if *helpFlag {
		fs.Usage()
		return ida.ExitOK
	}
	if *versionFlag {
		fmt.Fprintf(stdout, "idabatch version %s\n", version)
		return ida.ExitOK
	}

	// argument count is checked before anything touches the disk
	if fs.NArg() != 3 {
		boot := logging.Init("idabatch", logging.Options{Out: stderr})
		boot.Error().Msg(usageLine)
		return ida.ExitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *disasmFlag != "" {
		cfg.Tools.Disassembler = *disasmFlag
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "config: %v\n", err)
			return 1
		}
	}

	log := logging.Init("idabatch", logging.Options{Level: cfg.Log.Level, NoColor: cfg.Log.NoColor, Out: stderr})

	p := ida.NewPipeline(cfg.Tools, log)
	p.Stdout, p.Stderr = stdout, stderr
	if *jsonFlag {
		// stdout is reserved for the JSON document
		p.Stdout = stderr
	}

	res, runErr := p.Run(ctx, domain.RunRequest{
		Primary:   fs.Arg(0),
		Secondary: fs.Arg(1),
		ResultDir: fs.Arg(2),
	})
	code := ida.ExitCodeFor(runErr)
	if runErr != nil {
		log.Error().Err(runErr).Int("exit_code", code).Msg("idabatch failed")
	}

	if runErr == nil && *uploadFlag {
		if err := upload(ctx, cfg, res, log); err != nil {
			log.Error().Err(err).Msg("upload failed")
			code = 1
		}
	}

	if *jsonFlag {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		out := struct {
			domain.RunResult
			ExitCode int    `json:"exit_code"`
			Error    string `json:"error,omitempty"`
		}{RunResult: res, ExitCode: code}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		if err := enc.Encode(out); err != nil {
			log.Error().Err(err).Msg("could not write json result")
		}
	}
	return code
}

// loadConfig: explicit --config must exist, the CONFIG_PATH fallback may be missing
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOptional(os.Getenv("CONFIG_PATH"))
}

func upload(ctx context.Context, cfg *config.Config, res domain.RunResult, log zerolog.Logger) error {
	if !cfg.MinioEnabled() {
		return fmt.Errorf("minio is not configured (minio.endpoint, minio.bucketName)")
	}
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
		log,
	)
	if err != nil {
		return err
	}

	prefix := ArtifactPrefix(res)
	for _, path := range []string{res.TextDiffPath, res.BinDiffPath} {
		url, err := store.Upload(ctx, path, prefix+"/"+filepath.Base(path))
		if err != nil {
			return err
		}
		log.Info().Str("url", url).Msg("uploaded")
	}
	return nil
}

// ArtifactPrefix groups uploads by the compared pair, e.g. "a.exe_vs_b.exe".
func ArtifactPrefix(res domain.RunResult) string {
	return filepath.Base(res.PrimaryPath) + "_vs_" + filepath.Base(res.SecondaryPath)
}

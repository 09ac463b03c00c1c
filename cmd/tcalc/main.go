// Package main is the entry point for the tcalc command.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lemonberrylabs/tcalc/pkg/api"
	grpcapi "github.com/lemonberrylabs/tcalc/pkg/api/grpc"
	"github.com/lemonberrylabs/tcalc/pkg/config"
	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/modules"
	"github.com/lemonberrylabs/tcalc/pkg/runtime"
	"github.com/lemonberrylabs/tcalc/pkg/store"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "tcalc",
	Short:        "tcalc expression calculator",
	Long:         "tcalc evaluates arithmetic expressions and small programs with variables and user-defined functions.",
	SilenceUsage: true,
	RunE:         runREPL,
}

var evalCmd = &cobra.Command{
	Use:   "eval EXPRESSION...",
	Short: "Evaluate an expression and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEval,
}

var runCmd = &cobra.Command{
	Use:   "run FILE|-",
	Short: "Evaluate a program file and print each statement's result",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgram,
}

var printCmd = &cobra.Command{
	Use:   "print SOURCE...",
	Short: "Print the canonical, fully parenthesized form of the source",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPrint,
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Args:  cobra.NoArgs,
	RunE:  runREPL,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST and gRPC APIs",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("tcalc version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file (env TCALC_CONFIG)")
	pf.String("modules-dir", "", "Directory of importable modules (env TCALC_MODULES_DIR)")
	pf.Int("max-depth", 0, "Maximum user function call depth (default 1000, env TCALC_MAX_DEPTH)")
	pf.Bool("no-color", false, "Disable colored output (env NO_COLOR)")

	evalCmd.Flags().Bool("program", false, "Treat the input as a program")
	evalCmd.Flags().String("remote", "", "Evaluate on a tcalc gRPC server at this address")
	evalCmd.Flags().String("session", "", "Session to evaluate in (with --remote)")

	printCmd.Flags().Bool("program", false, "Parse the input as a program")
	printCmd.Flags().Bool("fingerprint", false, "Print the structural fingerprint instead")

	serveCmd.Flags().Int("port", 0, "HTTP server port (default 8787, env TCALC_PORT)")
	serveCmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env TCALC_GRPC_PORT)")
	serveCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env TCALC_HOST)")

	rootCmd.AddCommand(evalCmd, runCmd, printCmd, replCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := os.Getenv("TCALC_CONFIG")
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if v, _ := cmd.Flags().GetString("modules-dir"); v != "" {
		cfg.ModulesDir = v
	}
	if v, _ := cmd.Flags().GetInt("max-depth"); v != 0 {
		cfg.MaxCallDepth = v
	}
	if v, _ := cmd.Flags().GetBool("no-color"); v {
		cfg.NoColor = true
	}
	return cfg, cfg.Validate()
}

// evaluatorOptions returns the evaluator settings from cfg plus a module
// resolver when a modules directory is configured.
func evaluatorOptions(cfg config.Config) ([]runtime.Option, *modules.Dir) {
	opts := cfg.EvaluatorOptions()
	if cfg.ModulesDir == "" {
		return opts, nil
	}
	dir := modules.NewDir(cfg.ModulesDir, opts...)
	return append(opts, runtime.WithImportResolver(dir)), dir
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	src := strings.Join(args, " ")
	program, _ := cmd.Flags().GetBool("program")

	if remote, _ := cmd.Flags().GetString("remote"); remote != "" {
		session, _ := cmd.Flags().GetString("session")
		return evalRemote(cmd.Context(), cmd.OutOrStdout(), remote, session, src, program)
	}

	opts, _ := evaluatorOptions(cfg)
	ev := runtime.NewEvaluator(opts...)
	if program {
		vs, err := ev.EvaluateProgram(src)
		if err != nil {
			return err
		}
		printResults(cmd.OutOrStdout(), vs)
		return nil
	}

	v, err := ev.Evaluate(src)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), types.FormatNumber(v))
	return nil
}

func evalRemote(ctx context.Context, out io.Writer, addr, session, src string, program bool) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := grpcapi.NewClient(conn)
	if program {
		vs, err := client.EvaluateProgram(ctx, session, src)
		if err != nil {
			return err
		}
		printResults(out, vs)
		return nil
	}

	v, err := client.Evaluate(ctx, session, src)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, types.FormatNumber(v))
	return nil
}

func runProgram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	src, err := readSource(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	opts, _ := evaluatorOptions(cfg)
	vs, err := runtime.NewEvaluator(opts...).EvaluateProgram(src)
	if err != nil {
		return err
	}
	printResults(cmd.OutOrStdout(), vs)
	return nil
}

func runPrint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src := strings.Join(args, " ")
	if src == "-" {
		if src, err = readSource(cmd.InOrStdin(), "-"); err != nil {
			return err
		}
	}

	p := &expr.Parser{MaxSourceLength: cfg.MaxSourceLength, MaxNestingDepth: cfg.MaxNestingDepth}
	var node expr.Node
	if program, _ := cmd.Flags().GetBool("program"); program {
		node, err = p.ParseProgram(src)
	} else {
		node, err = p.ParseExpression(src)
	}
	if err != nil {
		return err
	}

	if fp, _ := cmd.Flags().GetBool("fingerprint"); fp {
		fmt.Fprintln(cmd.OutOrStdout(), expr.FingerprintHex(node))
		return nil
	}
	return printNode(cmd.OutOrStdout(), node)
}

func printNode(w io.Writer, node expr.Node) error {
	if err := expr.Print(w, node); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		cfg.GRPCPort = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Host = v
	}

	opts, dir := evaluatorOptions(cfg)
	s := store.New(opts...)
	server := api.New(s)
	server.SetParser(&expr.Parser{MaxSourceLength: cfg.MaxSourceLength, MaxNestingDepth: cfg.MaxNestingDepth})

	if dir != nil {
		log.Printf("Modules directory: %s", dir.Root())
		if err := server.LoadModules(dir); err != nil {
			log.Printf("Warning: failed to load modules directory: %v", err)
		}
	}

	// Start gRPC server
	grpcServer := grpcapi.New(s)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr())
		if err := grpcServer.Serve(cfg.GRPCAddr()); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down tcalc server...")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("tcalc %s listening on %s", version, cfg.Addr())
	return server.Listen(cfg.Addr())
}

// readSource reads a file, or standard input when name is "-".
func readSource(stdin io.Reader, name string) (string, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func printResults(w io.Writer, vs []float64) {
	for _, v := range vs {
		fmt.Fprintln(w, types.FormatNumber(v))
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/contextify/internal/api/http"
	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/hostobj"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/loader"
)

type runOptions struct {
	seed     string
	shared   bool
	parallel int
	json     bool
	globals  bool
	verbose  bool
	remote   string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [flags] <script|glob>...",
	Short: "Run scripts, each in a fresh context unless --shared",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScripts(cmd.Context(), cmd.OutOrStdout(), runOpts, args)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.seed, "seed", "s", "", "JSON, YAML or TOML file with the initial globals")
	f.BoolVar(&runOpts.shared, "shared", false, "Run every script in one context, in order")
	f.IntVarP(&runOpts.parallel, "parallel", "j", 1, "Independent contexts to run at once")
	f.BoolVar(&runOpts.json, "json", false, "Print one JSON report per script")
	f.BoolVarP(&runOpts.globals, "globals", "g", false, "Print the final globals")
	f.BoolVarP(&runOpts.verbose, "verbose", "v", false, "Log engine activity to stderr")
	f.StringVar(&runOpts.remote, "remote", "", "Run on a contextify server at this URL instead of in-process")
}

// report is the outcome of one script.
type report struct {
	Path    string              `json:"path"`
	Charset string              `json:"charset,omitempty"`
	Result  *registry.RunResult `json:"result,omitempty"`
	Globals map[string]any      `json:"globals,omitempty"`
	Error   *apihttp.ErrorBody  `json:"error,omitempty"`
	err     error
}

func runScripts(ctx context.Context, out io.Writer, opts runOptions, patterns []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	paths, err := loader.Expand(patterns...)
	if err != nil {
		return err
	}

	exec := newExecutor(opts)
	defer exec.close()

	var reports []*report
	if opts.shared {
		reports, err = runShared(ctx, exec, opts, paths)
	} else {
		reports, err = runIsolated(ctx, exec, opts, paths)
	}
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, r := range reports {
		if err := printReport(out, opts, r); err != nil {
			return err
		}
		if r.err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", r.Path, r.err))
		}
	}
	return result.ErrorOrNil()
}

func newExecutor(opts runOptions) executor {
	if opts.remote != "" {
		return newRemoteExecutor(opts.remote)
	}
	regOpts := registry.DefaultOptions()
	regOpts.MaxContexts = 0
	regOpts.IdleTTL = 0
	regOpts.Logger = logging.NewNop()
	if opts.verbose {
		regOpts.Logger = logging.NewDevelopment()
	}
	return &localExecutor{reg: registry.NewManager(regOpts)}
}

// runIsolated gives each script its own throwaway context.
func runIsolated(ctx context.Context, exec executor, opts runOptions, paths []string) ([]*report, error) {
	reports := make([]*report, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.parallel, 1))

	for i, path := range paths {
		g.Go(func() error {
			r := &report{Path: path}
			reports[i] = r

			seed, err := loadSeed(opts.seed)
			if err != nil {
				return err
			}
			script, err := loader.ReadScript(path)
			if err != nil {
				r.fail(err)
				return nil
			}
			r.Charset = script.Charset

			res, globals, err := exec.eval(ctx, seed, script.Source, path)
			if err != nil {
				r.fail(err)
				return nil
			}
			r.Result = res
			if opts.globals {
				r.Globals = globals
			}
			return nil
		})
	}
	// Only seed failures abort the batch.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// runShared runs scripts in order against one context, like loading several
// files into the same page.
func runShared(ctx context.Context, exec executor, opts runOptions, paths []string) ([]*report, error) {
	seed, err := loadSeed(opts.seed)
	if err != nil {
		return nil, err
	}
	cid, err := exec.create(ctx, seed)
	if err != nil {
		return nil, err
	}

	reports := make([]*report, 0, len(paths))
	for _, path := range paths {
		r := &report{Path: path}
		reports = append(reports, r)

		script, err := loader.ReadScript(path)
		if err != nil {
			r.fail(err)
			continue
		}
		r.Charset = script.Charset
		if r.Result, err = exec.run(ctx, cid, script.Source, path); err != nil {
			r.fail(err)
		}
	}

	if opts.globals && len(reports) > 0 {
		globals, err := exec.globals(ctx, cid)
		if err != nil {
			return nil, err
		}
		reports[len(reports)-1].Globals = globals
	}
	return reports, nil
}

func loadSeed(path string) (*hostobj.Object, error) {
	if path == "" {
		return hostobj.New(), nil
	}
	return loader.LoadSeed(path)
}

func (r *report) fail(err error) {
	var rerr *remoteError
	if errors.As(err, &rerr) {
		body := rerr.Body
		r.Error = &body
	} else {
		body := apihttp.NewErrorBody(err)
		r.Error = &body
	}
	r.err = err
}

func printReport(out io.Writer, opts runOptions, r *report) error {
	if opts.json {
		data, err := sonic.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	color.New(color.FgCyan, color.Bold).Fprintf(out, "==> %s\n", r.Path)
	if r.Result != nil {
		for _, entry := range r.Result.Console {
			fmt.Fprintf(out, "%s %s\n", consoleLevel(entry.Level), entry.Message)
		}
		fmt.Fprintln(out, color.GreenString("%s", formatValue(r.Result.Value)))
		for _, cbErr := range r.Result.CallbackErrors {
			fmt.Fprintln(out, color.YellowString("callback error: %s", cbErr))
		}
		if r.Result.Pending > 0 {
			fmt.Fprintln(out, color.YellowString("%d timer(s) still pending", r.Result.Pending))
		}
	}
	if r.Error != nil {
		label := r.Error.Kind
		if label == "" {
			label = "Error"
		}
		fmt.Fprintln(out, color.RedString("%s: %s", label, r.Error.Error))
	}
	if r.Globals != nil {
		data, err := sonic.ConfigStd.MarshalIndent(r.Globals, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "globals: %s\n", data)
	}
	return nil
}

func consoleLevel(level string) string {
	switch level {
	case "error":
		return color.RedString("[%s]", level)
	case "warn":
		return color.YellowString("[%s]", level)
	default:
		return color.HiBlackString("[%s]", level)
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "undefined"
	case string:
		return fmt.Sprintf("%q", v)
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

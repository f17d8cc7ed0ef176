// Command ebpf-verifier statically checks eBPF programs extracted from
// compiled object files.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SeanHeelan/ebpf-verifier/asm"
	"github.com/SeanHeelan/ebpf-verifier/cfg"
	"github.com/SeanHeelan/ebpf-verifier/config"
	"github.com/SeanHeelan/ebpf-verifier/elf"
	"github.com/SeanHeelan/ebpf-verifier/verifier"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	list             bool
	domain           string
	checkTermination bool
	verbose          bool
	asmFile          string
	dotFile          string
	configFile       string
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "ebpf-verifier FILE [SECTION]",
		Short:         "Statically verify eBPF bytecode",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			section := ""
			if len(args) > 1 {
				section = args[1]
			}
			return run(cmd, args[0], section, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.list, "list", "l", false, "list program sections and exit")
	cmd.Flags().StringVarP(&opts.domain, "domain", "d", "", "abstract domain (interval, stats)")
	cmd.Flags().BoolVar(&opts.checkTermination, "check-termination", false, "require provably bounded execution")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print per-block invariants")
	cmd.Flags().StringVar(&opts.asmFile, "asm", "", "write disassembly to `FILE`")
	cmd.Flags().StringVar(&opts.dotFile, "dot", "", "export the CFG in Graphviz format to `FILE`")
	cmd.Flags().StringVar(&opts.configFile, "config", "ebpf-verifier.toml", "configuration `FILE`")

	return cmd
}

func run(cmd *cobra.Command, path, section string, opts options) error {
	conf, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.domain != "" {
		conf.Domain = opts.domain
	}
	if opts.checkTermination {
		conf.CheckTermination = true
	}
	if opts.verbose {
		conf.PrintInvariants = true
	}

	if opts.list || section == "" {
		sections, err := elf.Sections(path)
		if err != nil {
			return err
		}
		if !opts.list {
			fmt.Fprintln(cmd.OutOrStdout(), "please specify a section; available sections:")
		}
		for _, s := range sections {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	}

	prog, err := elf.LoadProgram(path, section)
	if err != nil {
		return fmt.Errorf("trivial verification failure: %w", err)
	}

	if conf.Domain == "stats" {
		s := asm.CollectStats(prog)
		fmt.Fprintf(cmd.OutOrStdout(), "%d,%d,%d,%d,%d\n", s.Count, s.Loads, s.Stores, s.Jumps, s.Joins)
		return nil
	}
	if conf.Domain != "interval" {
		return fmt.Errorf("unknown abstract domain %q", conf.Domain)
	}

	if opts.asmFile != "" {
		if err := writeAsm(opts.asmFile, prog); err != nil {
			return err
		}
	}

	g, err := asm.MakeCfg(prog)
	if err != nil {
		return fmt.Errorf("trivial verification failure: %w", err)
	}
	g.Simplify()

	if opts.dotFile != "" {
		if err := writeDot(opts.dotFile, g); err != nil {
			return err
		}
	}

	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	if conf.PrintInvariants {
		log.SetLevel(logrus.DebugLevel)
	}

	res := verifier.Verify(g, verifier.Options{
		CheckTermination: conf.CheckTermination,
		WideningDelay:    conf.WideningDelay,
		NarrowingPasses:  conf.NarrowingPasses,
		Thresholds:       conf.Thresholds,
		Logger:           log,
	})

	for _, w := range res.Warnings {
		fmt.Fprintln(cmd.OutOrStdout(), w)
	}
	if !res.OK {
		color.New(color.FgRed, color.Bold).Fprintln(cmd.OutOrStdout(), "verification failed")
		os.Exit(1)
	}
	color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "verification passed")
	return nil
}

func writeAsm(path string, prog []asm.Inst) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	pc := 0
	for _, ins := range prog {
		if _, err := fmt.Fprintf(f, "%4d: %s\n", pc, ins); err != nil {
			f.Close()
			return err
		}
		pc++
		if ins.IsWide() {
			pc++
		}
	}
	return f.Close()
}

func writeDot(path string, g *cfg.Cfg[asm.Statement]) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := verifier.WriteDot(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

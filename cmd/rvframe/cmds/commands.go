package cmds

import (
	"bufio"
	"debug/dwarf"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rvdbg/rvframe/pkg/config"
	"github.com/rvdbg/rvframe/pkg/dwarf/op"
	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
	"github.com/rvdbg/rvframe/pkg/logflags"
	"github.com/rvdbg/rvframe/pkg/proc"
	"github.com/rvdbg/rvframe/pkg/proc/core"
	"github.com/rvdbg/rvframe/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of layers that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath overrides the default configuration file.
	configPath string
	// elfPath is the executable providing code and symbols.
	elfPath string
	// snapshotPath is the register and memory snapshot of the stopped thread.
	snapshotPath string
	// abiName and byteOrder override the configuration and the snapshot.
	abiName   string
	byteOrder string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	// batchLogOut is the log destination shared by the lines of a batch,
	// it replaces --log-dest while set.
	batchLogOut io.Writer
)

const rvframeCommandLongDesc = `rvframe reconstructs the call frames of a stopped RISC-V thread.

The state of the thread is read from a snapshot file (registers and memory,
see 'rvframe help snapshot'), code and symbols can also be read from the ELF
executable. Prologues are analyzed instruction by instruction so that
frames can be unwound without call frame information.`

var errNoSnapshot = errors.New("this command needs the registers of a thread, use --snapshot")

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:           "rvframe",
		Short:         "rvframe is a RISC-V stack frame analyzer.",
		Long:          rvframeCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of layers that should produce debug output (see 'rvframe help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'rvframe help log').")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, defaults to config.yml in the rvframe configuration directory.")
	rootCommand.PersistentFlags().StringVarP(&elfPath, "elf", "e", "", "RISC-V ELF executable.")
	rootCommand.PersistentFlags().StringVarP(&snapshotPath, "snapshot", "s", "", "Snapshot of the stopped thread.")
	rootCommand.PersistentFlags().StringVar(&abiName, "abi", "", "Target ABI (rv32g, rv64g, rv64imac, ...).")
	rootCommand.PersistentFlags().StringVar(&byteOrder, "byte-order", "", "Target byte order: little, big or unknown.")

	skipCommand := &cobra.Command{
		Use:   "skip-prologue <address|function>",
		Short: "Prints the first address after the prologue of a function.",
		Long: `Prints the first address after the prologue of a function.

The prologue end recorded in the line table is used when available,
otherwise the instructions following the address are analyzed.`,
		Args: cobra.ExactArgs(1),
		RunE: skipPrologueCmd,
	}
	rootCommand.AddCommand(skipCommand)

	scanCommand := &cobra.Command{
		Use:   "scan <address|function>",
		Short: "Analyzes the prologue of a function.",
		Long: `Analyzes the prologue of a function.

Prints the instructions examined, the frame size, the registers saved by
the prologue and where. With --live the registers of the snapshot are used
to compute absolute addresses and to detect dynamic stack allocations.`,
		Args: cobra.ExactArgs(1),
		RunE: scanCmd,
	}
	scanCommand.Flags().Uint64("limit", 0, "End of the analyzed range, defaults to the end of the function.")
	scanCommand.Flags().Bool("live", false, "Use the registers of the snapshot.")
	rootCommand.AddCommand(scanCommand)

	backtraceCommand := &cobra.Command{
		Use:     "backtrace",
		Aliases: []string{"bt"},
		Short:   "Prints the call stack.",
		Args:    cobra.NoArgs,
		RunE:    backtraceCmd,
	}
	backtraceCommand.Flags().Int("depth", 0, "Maximum stack depth, defaults to max-backtrace-depth.")
	rootCommand.AddCommand(backtraceCommand)

	regsCommand := &cobra.Command{
		Use:   "regs [register...]",
		Short: "Prints registers.",
		Long: `Prints registers.

Without arguments the general purpose registers are printed. Registers can
be named by their architectural name (x10, f10), their calling convention
name (a0, fa0) or any unambiguous prefix of one.`,
		RunE: regsCmd,
	}
	regsCommand.Flags().BoolP("all", "a", false, "Print all registers.")
	regsCommand.Flags().Bool("float", false, "Print floating point registers.")
	regsCommand.Flags().Int("frame", 0, "Print the registers of the given frame.")
	rootCommand.AddCommand(regsCommand)

	retvalCommand := &cobra.Command{
		Use:   "retval [type]",
		Short: "Reads or writes a function return value.",
		Long: `Reads or writes the return value of a function.

The type is either given in C-like syntax, for example

	rvframe retval 'struct{double,double}'
	rvframe retval '[3]long' --write 0102...

or read from the debug information of the executable with --function.`,
		Args: cobra.MaximumNArgs(1),
		RunE: retvalCmd,
	}
	retvalCommand.Flags().String("function", "", "Use the return type of this function.")
	retvalCommand.Flags().String("write", "", "Hex encoded value to store in the return location.")
	retvalCommand.Flags().String("save", "", "Write the updated snapshot to this file.")
	rootCommand.AddCommand(retvalCommand)

	locateCommand := &cobra.Command{
		Use:   "locate <expression>",
		Short: "Evaluates a DWARF location expression.",
		Long: `Evaluates a hex encoded DWARF location expression in a frame.

The frame base computed by the prologue analysis is used for
DW_OP_call_frame_cfa and DW_OP_fbreg.`,
		Args: cobra.ExactArgs(1),
		RunE: locateCmd,
	}
	locateCommand.Flags().Int("frame", 0, "Frame to evaluate the expression in.")
	rootCommand.AddCommand(locateCommand)

	batchCommand := &cobra.Command{
		Use:   "batch <script>",
		Short: "Runs the commands listed in a file.",
		Long: `Runs the commands listed in a file, one per line.

Lines are split like a shell would, empty lines and lines starting with #
are skipped. The global flags of the batch invocation apply to every line.`,
		Args: cobra.ExactArgs(1),
		RunE: batchCmd,
	}
	rootCommand.AddCommand(batchCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rvframe\n%s\n", version.RVFrameVersion)
			if log {
				fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			}
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which layers should produce logs.

The argument of --log-output must be a comma separated list of layer
names selected from this list:


	prologue	Log every instruction examined by the prologue analyzer
	frame		Log frame caches and stack walking (default)
	retval		Log return value classification
	xfer		Log register transfers
	symbols		Log symbol and line table loading
	all		All of the above

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "Help about snapshot files.",
		Long: `A snapshot is a YAML file describing a stopped thread:

	abi: rv64g
	byte-order: little
	registers:
	  pc: 0x10010
	  sp: 0x7fffffe0
	  ra: 0x10100
	memory:
	  - addr: 0x10000
	    insns: [0xfe010113, 0x00113c23]
	  - addr: 0x7fffffe0
	    dwords: [0, 0, 0, 0x10100]
	  - addr: 0x80000000
	    bytes: "deadbeef"
	    size: 64
	functions:
	  - {name: main, entry: 0x10000, end: 0x10040}

Register values can be negative, they are stored in two's complement.
When --elf is also given the loadable segments of the executable are
mapped beneath the snapshot memory and its symbols are used unless the
snapshot lists functions.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// session is the state shared by the commands of one invocation.
type session struct {
	conf  *config.Config
	flags logflags.Flags
	arch  *proc.Arch
	bi    *proc.BinaryInfo
	proc  *core.Process
	tgt   proc.Target

	out   io.Writer
	color bool
}

func openSession(cmd *cobra.Command) (_ *session, err error) {
	s := &session{}
	defer func() {
		if err != nil {
			s.close()
		}
	}()
	if configPath != "" {
		conf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		s.conf = conf
	} else {
		s.conf = config.LoadConfig()
	}

	logstr := logOutput
	if logstr == "" && log {
		logstr = s.conf.LogOutput
	}
	dest := logDest
	if batchLogOut != nil {
		dest = ""
	}
	flags, err := logflags.Setup(log, logstr, dest)
	if err != nil {
		return nil, err
	}
	if log && batchLogOut != nil {
		flags.Out = batchLogOut
	}
	s.flags = flags

	abi, order := s.conf.ABI, s.conf.ByteOrder
	var snap *core.Snapshot
	if snapshotPath != "" {
		snap, err = core.OpenSnapshot(snapshotPath)
		if err != nil {
			return nil, err
		}
		if snap.ABI != "" {
			abi = snap.ABI
		}
		if snap.ByteOrder != "" {
			order = snap.ByteOrder
		}
	}
	if elfPath != "" {
		s.bi, err = proc.LoadBinaryInfo(elfPath, s.conf.SymbolCacheSize, flags)
		if err != nil {
			return nil, err
		}
		order = s.bi.ByteOrder.String()
	}
	if flagChanged(cmd, "abi") {
		abi = abiName
	}
	if flagChanged(cmd, "byte-order") {
		order = byteOrder
	}

	cfg := proc.RISCVConfig{
		PrologueScanLimit: s.conf.PrologueScanLimit,
		SkipPrologueLimit: s.conf.SkipPrologueLimit,
		Log:               flags,
	}
	if cfg.ABI, err = proc.ParseABI(abi); err != nil {
		return nil, err
	}
	if cfg.Endian, err = proc.ParseEndianness(order); err != nil {
		return nil, err
	}
	s.arch, err = proc.RISCVArch(cfg)
	if err != nil {
		return nil, err
	}
	if s.bi != nil {
		if err := s.arch.FixRegisterSize(s.bi.RegSize); err != nil {
			return nil, err
		}
	}

	switch {
	case snap != nil:
		s.proc, err = core.NewProcess(snap, s.arch, s.bi)
		if err != nil {
			return nil, err
		}
		s.tgt = s.proc
	case s.bi != nil:
		s.tgt = proc.NewTarget(s.bi.Memory(), nil, s.bi)
	default:
		return nil, errors.New("no target, use --elf or --snapshot")
	}

	s.out = cmd.OutOrStdout()
	if f, ok := s.out.(*os.File); ok && *s.conf.Color && isatty.IsTerminal(f.Fd()) {
		s.out = colorable.NewColorable(f)
		s.color = true
	}
	return s, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

func (s *session) close() {
	if s.bi != nil {
		s.bi.Close()
	}
	s.flags.Close()
}

const (
	colorFunction = "\x1b[1;34m"
	colorAddr     = "\x1b[33m"
	colorReset    = "\x1b[0m"
)

func (s *session) colorize(color, str string) string {
	if !s.color {
		return str
	}
	return color + str + colorReset
}

type funcLookup interface {
	LookupFunc(name string) *proc.Function
}

// function returns the function called name, looking in the snapshot
// first.
func (s *session) function(name string) *proc.Function {
	if s.proc != nil {
		if l, ok := s.proc.Symbols().(funcLookup); ok {
			if fn := l.LookupFunc(name); fn != nil {
				return fn
			}
		}
	}
	if s.bi != nil {
		return s.bi.LookupFunc(name)
	}
	return nil
}

// location parses an address or a function name.
func (s *session) location(loc string) (uint64, *proc.Function, error) {
	if addr, err := strconv.ParseUint(loc, 0, 64); err == nil {
		if syms := s.tgt.Symbols(); syms != nil {
			return addr, syms.FunctionAt(addr), nil
		}
		return addr, nil, nil
	}
	fn := s.function(loc)
	if fn == nil {
		return 0, nil, fmt.Errorf("could not find function %s", loc)
	}
	return fn.Entry, fn, nil
}

func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

func skipPrologueCmd(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		addr, _, err := s.location(args[0])
		if err != nil {
			return err
		}
		pc, err := s.arch.SkipPrologue(s.tgt, addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%#x\n", pc)
		return nil
	})
}

func scanCmd(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		start, fn, err := s.location(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetUint64("limit")
		live, _ := cmd.Flags().GetBool("live")

		var regs *op.DwarfRegisters
		if live {
			if s.proc == nil {
				return errNoSnapshot
			}
			regs = s.proc.DwarfRegisters()
		}
		if limit == 0 {
			switch {
			case live && regs.PC() > start && (fn == nil || regs.PC() < fn.End):
				limit = regs.PC()
			case fn != nil && fn.Entry == start:
				limit = fn.End
			default:
				limit = start + uint64(s.conf.PrologueScanLimit)
			}
		}

		r, err := s.arch.AnalyzePrologue(s.tgt, start, limit, regs)
		if err != nil {
			return err
		}
		insns, err := s.arch.Disassemble(s.tgt.Memory(), r.Start, r.Limit)
		if err != nil {
			return err
		}
		for _, insn := range insns {
			mark := " "
			if insn.Addr == r.End {
				mark = ">"
			}
			fmt.Fprintf(s.out, "%s %s:\t%08x\t%s\n", mark, s.colorize(colorAddr, fmt.Sprintf("%#x", insn.Addr)), insn.Word, insn.Text)
		}
		fmt.Fprintf(s.out, "prologue end: %#x\n", r.End)
		fmt.Fprintf(s.out, "frame size: %d\n", r.FrameOffset)
		fmt.Fprintf(s.out, "frame register: %s\n", regnum.RISCVToABIName(r.FrameReg))
		if live {
			fmt.Fprintf(s.out, "frame base: %#x\n", r.FrameBase)
			fmt.Fprintf(s.out, "restarts: %d\n", r.Restarts)
		}
		saved := make([]uint64, 0, len(r.Saved))
		for reg := range r.Saved {
			if reg != regnum.RISCV_PC {
				saved = append(saved, reg)
			}
		}
		sort.Slice(saved, func(i, j int) bool { return saved[i] < saved[j] })
		for _, reg := range saved {
			loc := r.Saved[reg]
			if !live && loc.Kind == proc.SavedInMemory {
				fmt.Fprintf(s.out, "%s at sp%+d\n", regnum.RISCVToABIName(reg), int64(loc.Addr))
				continue
			}
			fmt.Fprintf(s.out, "%s %v\n", regnum.RISCVToABIName(reg), loc)
		}
		return nil
	})
}

func backtraceCmd(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		if s.proc == nil {
			return errNoSnapshot
		}
		depth, _ := cmd.Flags().GetInt("depth")
		if depth <= 0 {
			depth = s.conf.MaxBacktraceDepth
		}
		frames, err := s.arch.Stacktrace(s.tgt, depth)
		printStack(s, frames)
		return err
	})
}

func printStack(s *session, frames []proc.Stackframe) {
	w := 16
	if s.arch.PtrSize() == 4 {
		w = 8
	}
	for i, frame := range frames {
		fmt.Fprintf(s.out, "%2d  %s in %s\n", i, s.colorize(colorAddr, fmt.Sprintf("0x%0*x", w, frame.PC)), s.colorize(colorFunction, frame.FunctionName()))
		fmt.Fprintf(s.out, "    sp=%#x cfa=%#x\n", frame.SP, frame.CFA)
	}
}

func regsCmd(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		if s.proc == nil {
			return errNoSnapshot
		}
		var regs proc.RegisterReadWriter = s.proc.Registers()
		if n, _ := cmd.Flags().GetInt("frame"); n > 0 {
			frames, err := s.arch.Stacktrace(s.tgt, n)
			if err != nil {
				return err
			}
			if n >= len(frames) {
				return fmt.Errorf("frame %d does not exist", n)
			}
			regs = frames[n].Regs
		}

		var list []proc.Register
		if len(args) > 0 {
			names := registerNames()
			for _, name := range args {
				reg, err := resolveRegister(names, name)
				if err != nil {
					return err
				}
				buf := make([]byte, s.arch.RegSize(reg))
				if err := regs.ReadRegister(reg, buf); err != nil {
					return err
				}
				list = append(list, proc.Register{Regnum: reg, Name: regnum.RISCVToABIName(reg), Raw: buf})
			}
		} else {
			group := proc.GeneralRegisters
			if all, _ := cmd.Flags().GetBool("all"); all {
				group = proc.AllRegisters
			} else if float, _ := cmd.Flags().GetBool("float"); float {
				group = proc.FloatRegisters
			}
			var err error
			list, err = s.arch.ReadRegisters(regs, group)
			if err != nil {
				return err
			}
		}
		for _, reg := range list {
			fmt.Fprintf(s.out, "%10s = %s\n", reg.Name, s.arch.FormatRegister(reg.Regnum, reg.Raw))
		}
		return nil
	})
}

// registerNames returns a trie of every register name and alias.
func registerNames() *trie.Trie {
	t := trie.New()
	for name, reg := range regnum.RISCVNameToRegnum {
		t.Add(name, reg)
	}
	return t
}

// resolveRegister returns the register called name or the only register
// with a name starting with name.
func resolveRegister(names *trie.Trie, name string) (uint64, error) {
	name = strings.ToLower(strings.TrimPrefix(name, "$"))
	if node, ok := names.Find(name); ok {
		return node.Meta().(uint64), nil
	}
	matches := names.PrefixSearch(name)
	regs := make(map[uint64]bool)
	for _, m := range matches {
		if node, ok := names.Find(m); ok {
			regs[node.Meta().(uint64)] = true
		}
	}
	switch len(regs) {
	case 0:
		return 0, &proc.InvalidRegisterError{Name: name}
	case 1:
		for reg := range regs {
			return reg, nil
		}
	}
	sort.Strings(matches)
	return 0, fmt.Errorf("ambiguous register %q: %s", name, strings.Join(matches, ", "))
}

func retvalCmd(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		if s.proc == nil {
			return errNoSnapshot
		}
		fnName, _ := cmd.Flags().GetString("function")
		writeHex, _ := cmd.Flags().GetString("write")
		savePath, _ := cmd.Flags().GetString("save")

		var typ dwarf.Type
		var err error
		switch {
		case fnName != "":
			if s.bi == nil {
				return errors.New("--function needs an executable with debug information, use --elf")
			}
			typ, err = s.bi.ReturnType(fnName)
		case len(args) == 1:
			typ, err = s.arch.ParseType(args[0])
		default:
			return errors.New("you must provide a type or a function")
		}
		if err != nil {
			return err
		}

		if writeHex == "" {
			buf := make([]byte, typ.Size())
			conv, err := s.arch.MarshalReturnValue(s.tgt, typ, proc.ToMemory, buf)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "%s (%d bytes) returned in %s\n", typ, typ.Size(), conv)
			fmt.Fprintf(s.out, "%s\n", hex.EncodeToString(buf))
			return nil
		}

		buf, err := hex.DecodeString(writeHex)
		if err != nil {
			return fmt.Errorf("bad value: %w", err)
		}
		if int64(len(buf)) != typ.Size() {
			return fmt.Errorf("value is %d bytes, %s is %d bytes", len(buf), typ, typ.Size())
		}
		conv, err := s.arch.MarshalReturnValue(s.tgt, typ, proc.ToRegisters, buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s (%d bytes) stored in %s\n", typ, typ.Size(), conv)
		if savePath == "" {
			return nil
		}
		f, err := os.Create(savePath)
		if err != nil {
			return err
		}
		if err := s.proc.Snapshot().Write(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

func locateCmd(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		if s.proc == nil {
			return errNoSnapshot
		}
		instr, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("bad expression: %w", err)
		}
		n, _ := cmd.Flags().GetInt("frame")
		frames, err := s.arch.Stacktrace(s.tgt, n)
		if err != nil {
			return err
		}
		if n >= len(frames) {
			return fmt.Errorf("frame %d does not exist", n)
		}

		var b strings.Builder
		op.PrettyPrint(&b, instr, s.arch.PtrSize())
		fmt.Fprintf(s.out, "%s\n", strings.TrimSpace(b.String()))

		addr, pieces, err := op.ExecuteStackProgram(frames[n].Regs, instr, s.arch.PtrSize(), regnum.RISCVFromDwarf)
		if err != nil {
			return err
		}
		if pieces == nil {
			fmt.Fprintf(s.out, "address %#x\n", uint64(addr))
			return nil
		}
		for _, piece := range pieces {
			if piece.IsRegister {
				fmt.Fprintf(s.out, "register %s size %d\n", regnum.RISCVToABIName(piece.RegNum), piece.Size)
			} else {
				fmt.Fprintf(s.out, "address %#x size %d\n", uint64(piece.Addr), piece.Size)
			}
		}
		return nil
	})
}

func batchCmd(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	if log && logDest != "" {
		w, err := logflags.OpenDest(logDest)
		if err != nil {
			return err
		}
		defer w.Close()
		batchLogOut = w
		defer func() { batchLogOut = nil }()
	}

	// global flags are passed on to every line
	var global []string
	cmd.Root().PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		if flag.Changed && flag.Name != "log-dest" {
			global = append(global, "--"+flag.Name+"="+flag.Value.String())
		}
	})
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	scan := bufio.NewScanner(f)
	for lineno := 1; scan.Scan(); lineno++ {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words, err := splitCommandLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", args[0], lineno, err)
		}
		if words[0] == "batch" {
			return fmt.Errorf("%s:%d: batch can not be nested", args[0], lineno)
		}
		root := New()
		root.SetOut(out)
		root.SetErr(errOut)
		root.SetArgs(append(append([]string{}, global...), words...))
		if err := root.Execute(); err != nil {
			return fmt.Errorf("%s:%d: %w", args[0], lineno, err)
		}
	}
	return scan.Err()
}

func splitCommandLine(line string) ([]string, error) {
	v, err := argv.Argv(line,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 || len(v[0]) == 0 {
		return nil, fmt.Errorf("illegal command line '%s'", line)
	}
	return v[0], nil
}

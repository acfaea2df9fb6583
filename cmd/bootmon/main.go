package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fotakit/bootmon/pkg/command"
	"github.com/fotakit/bootmon/pkg/fwimage"
	"github.com/fotakit/bootmon/pkg/session"
	"github.com/fotakit/bootmon/pkg/telemetry"
	"github.com/fotakit/bootmon/pkg/transport"
)

var (
	portFlag    string
	baudFlag    int
	timeoutFlag time.Duration
	redisAddr   string
	redisPass   string
	redisDB     int
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	root := &cobra.Command{
		Use:   "bootmon",
		Short: "host-side STM32 bootloader monitor and firmware provisioning tool",
	}
	root.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}
	root.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "serial device path (default: auto-select by USB description)")
	root.PersistentFlags().IntVarP(&baudFlag, "baud", "b", transport.DefaultBaudRate, "serial baud rate")
	root.PersistentFlags().DurationVarP(&timeoutFlag, "timeout", "t", transport.DefaultByteTimeout, "per-byte receive timeout")
	root.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "redis address for live progress publishing (optional)")
	root.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "redis password")
	root.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "redis database number")

	root.AddCommand(
		scanCmd(),
		simpleCmd("version", "read the bootloader version", func() command.Command { return command.GetBootloaderVersion{} }),
		simpleCmd("app-version", "read the installed application version", func() command.Command { return command.GetAppVersion{} }),
		simpleCmd("chip-id", "read the chip identity", func() command.Command { return command.GetChipID{} }),
		simpleCmd("rdp", "read the flash read-protection level", func() command.Command { return command.GetRDPLevel{} }),
		simpleCmd("commands", "list the commands the bootloader supports", func() command.Command { return command.GetHelp{} }),
		simpleCmd("sync", "probe the bootloader with a bare sync", func() command.Command { return &command.Sync{} }),
		simpleCmd("retransmit", "ask the device to resend its last frame", func() command.Command { return command.Retransmit{} }),
		updateCmd(),
		eraseCmd(),
		jumpCmd(),
		signCmd(),
		padCmd(),
		rawCmd(),
		menuCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolvePort returns the configured device path, auto-selecting by USB
// description when none was given.
func resolvePort() (string, error) {
	if portFlag != "" {
		return portFlag, nil
	}
	ports, err := transport.ListPorts()
	if err != nil {
		return "", err
	}
	if info, ok := transport.Match(ports, transport.AutoSelectKeyword); ok {
		log.Printf("Auto-selected %s", info)
		return info.Device, nil
	}
	return "", fmt.Errorf("no port matching %q found; pass --port (use `bootmon scan` to list ports)", transport.AutoSelectKeyword)
}

// openSession opens the port and wires the optional redis reporter. The
// returned cleanup releases everything on every exit path.
func openSession() (*session.Session, func(), error) {
	device, err := resolvePort()
	if err != nil {
		return nil, nil, err
	}
	port, err := transport.Open(device, baudFlag)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Opened %s at %d baud", device, baudFlag)

	sess := session.New(port, timeoutFlag)
	cleanup := func() { port.Close() }
	if redisAddr != "" {
		pub, err := telemetry.New(redisAddr, redisPass, redisDB)
		if err != nil {
			log.Printf("Telemetry disabled: %v", err)
		} else {
			sess.SetReporter(pub)
			cleanup = func() {
				pub.Close()
				port.Close()
			}
		}
	}
	return sess, cleanup, nil
}

// run executes one command against a fresh session and prints the outcome.
func run(cmd command.Command) error {
	sess, cleanup, err := openSession()
	if err != nil {
		return err
	}
	defer cleanup()
	return runOn(sess, cmd)
}

func runOn(sess *session.Session, cmd command.Command) error {
	resp, err := sess.Execute(cmd)
	if err != nil {
		return err
	}
	printResponse(resp)
	if !resp.Success {
		return fmt.Errorf("%s failed", cmd.Info().Mnemonic)
	}
	return nil
}

func printResponse(resp command.ExecutionResponse) {
	keys := make([]string, 0, len(resp.Data))
	for k := range resp.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-16s %s\n", k+":", resp.Data[k])
	}
}

func simpleCmd(use, short string, build func() command.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(build())
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "list serial ports and mark the auto-selected one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := transport.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("no serial ports found")
				return nil
			}
			selected, _ := transport.Match(ports, transport.AutoSelectKeyword)
			for i, p := range ports {
				marker := " "
				if p.Device == selected.Device {
					marker = "*"
				}
				fmt.Printf("%s [%d] %s\n", marker, i, p)
			}
			return nil
		},
	}
}

func updateCmd() *cobra.Command {
	var image, deviceID string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "run the full firmware update handshake and stream the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUint(deviceID, 16)
			if err != nil {
				return fmt.Errorf("invalid device id %q: %w", deviceID, err)
			}
			ctx, err := command.NewUpdateContext(image)
			if err != nil {
				return err
			}
			log.Printf("Image %s: %d bytes, %d packets", image, ctx.Size, ctx.TotalPackets)
			return run(command.NewUpdateChain(uint16(id), ctx))
		},
	}
	cmd.Flags().StringVarP(&image, "image", "i", "", "signed firmware image to flash")
	cmd.Flags().StringVarP(&deviceID, "device-id", "d", "0x6415", "expected device identity")
	cmd.MarkFlagRequired("image")
	return cmd
}

func eraseCmd() *cobra.Command {
	var sectors []int
	var mass bool
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "erase flash sectors, or everything with --mass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			erase := &command.EraseFlash{MassErase: mass}
			for _, s := range sectors {
				if s < 0 || s > 0xFF {
					return fmt.Errorf("sector %d out of range", s)
				}
				erase.Sectors = append(erase.Sectors, byte(s))
			}
			return run(erase)
		},
	}
	cmd.Flags().IntSliceVarP(&sectors, "sectors", "s", nil, "sector numbers to erase")
	cmd.Flags().BoolVar(&mass, "mass", false, "mass erase the whole flash")
	return cmd
}

func jumpCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "jump",
		Short: "jump to an address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseUint(addr, 32)
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", addr, err)
			}
			return run(&command.JumpToAddr{Address: uint32(a)})
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "target address, e.g. 0x08008000")
	cmd.MarkFlagRequired("addr")
	return cmd
}

func signCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign <image.bin>",
		Short: "stamp size, CBC-MAC signature and CRC into a firmware image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fwimage.Sign(args[0])
		},
	}
}

func padCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "pad <file.bin>",
		Short: "pad a binary with 0xFF to the flash slot size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fwimage.Pad(args[0], size)
		},
	}
	cmd.Flags().IntVar(&size, "size", fwimage.DefaultPadSize, "target size in bytes")
	return cmd
}

// rawCmd sends operator-supplied bytes one at a time, pausing between each.
// Bring-up debugging aid.
func rawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <byte> [byte...]",
		Short: "send raw bytes one at a time over the port",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bytes := make([]byte, 0, len(args))
			for _, a := range args {
				v, err := parseUint(a, 8)
				if err != nil {
					return fmt.Errorf("invalid byte %q: %w", a, err)
				}
				bytes = append(bytes, byte(v))
			}
			device, err := resolvePort()
			if err != nil {
				return err
			}
			port, err := transport.Open(device, baudFlag)
			if err != nil {
				return err
			}
			defer port.Close()
			in := bufio.NewScanner(os.Stdin)
			for i, b := range bytes {
				fmt.Printf("Sending byte %d/%d: 0x%02X\n", i+1, len(bytes), b)
				if err := port.WriteAll([]byte{b}); err != nil {
					return err
				}
				if i < len(bytes)-1 {
					fmt.Print("Enter to send next byte ")
					if !in.Scan() {
						break
					}
				}
			}
			return nil
		},
	}
}

func menuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "interactive command menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup, err := openSession()
			if err != nil {
				return err
			}
			defer cleanup()
			return runMenu(sess)
		},
	}
}

func runMenu(sess *session.Session) error {
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println()
		fmt.Println(" 1  Get Bootloader Version")
		fmt.Println(" 2  Get App Version")
		fmt.Println(" 3  Get Chip ID")
		fmt.Println(" 4  Get Read Protection Level")
		fmt.Println(" 5  Get Supported Commands")
		fmt.Println(" 6  Sync")
		fmt.Println(" 7  Firmware Update")
		fmt.Println(" 8  Erase Flash")
		fmt.Println(" 9  Jump to Address")
		fmt.Println(" q  Quit")
		choice, ok := prompt(in, "> ")
		if !ok || choice == "q" {
			return nil
		}
		cmd, err := menuCommand(in, choice)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if cmd == nil {
			continue
		}
		if err := runOn(sess, cmd); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func menuCommand(in *bufio.Scanner, choice string) (command.Command, error) {
	switch choice {
	case "1":
		return command.GetBootloaderVersion{}, nil
	case "2":
		return command.GetAppVersion{}, nil
	case "3":
		return command.GetChipID{}, nil
	case "4":
		return command.GetRDPLevel{}, nil
	case "5":
		return command.GetHelp{}, nil
	case "6":
		return &command.Sync{}, nil
	case "7":
		image, ok := prompt(in, "image path: ")
		if !ok {
			return nil, nil
		}
		idText, ok := prompt(in, fmt.Sprintf("device id [0x%04X]: ", command.DefaultDeviceID))
		if !ok {
			return nil, nil
		}
		id := uint64(command.DefaultDeviceID)
		if idText != "" {
			var err error
			if id, err = parseUint(idText, 16); err != nil {
				return nil, fmt.Errorf("invalid device id %q: %w", idText, err)
			}
		}
		ctx, err := command.NewUpdateContext(image)
		if err != nil {
			return nil, err
		}
		return command.NewUpdateChain(uint16(id), ctx), nil
	case "8":
		text, ok := prompt(in, "sectors (comma-separated) or 'mass': ")
		if !ok {
			return nil, nil
		}
		if text == "mass" {
			return &command.EraseFlash{MassErase: true}, nil
		}
		erase := &command.EraseFlash{}
		for _, part := range strings.Split(text, ",") {
			v, err := parseUint(strings.TrimSpace(part), 8)
			if err != nil {
				return nil, fmt.Errorf("invalid sector %q: %w", part, err)
			}
			erase.Sectors = append(erase.Sectors, byte(v))
		}
		return erase, nil
	case "9":
		text, ok := prompt(in, "address: ")
		if !ok {
			return nil, nil
		}
		a, err := parseUint(text, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", text, err)
		}
		return &command.JumpToAddr{Address: uint32(a)}, nil
	}
	return nil, fmt.Errorf("unknown choice %q", choice)
}

func prompt(in *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !in.Scan() {
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

// parseUint accepts decimal or 0x-prefixed hex.
func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}

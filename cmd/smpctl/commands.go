package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/mcumgr"
	"github.com/arloliu/go-smp/transport/udp"
	"github.com/arloliu/go-smp/upload"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML configuration file",
		EnvVars: []string{"SMPCTL_CONFIG"},
	}
	addressFlag = &cli.StringFlag{
		Name:    "address",
		Aliases: []string{"a"},
		Usage:   "device address as host:port",
		EnvVars: []string{"SMPCTL_ADDRESS"},
	}
	mtuFlag = &cli.IntFlag{
		Name:  "mtu",
		Usage: "transport MTU",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "request timeout",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level: debug, info, warn, error",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "log backend: slog, zap",
	}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{configFlag, addressFlag, mtuFlag, timeoutFlag, logLevelFlag, logFormatFlag}
}

// settings resolves the configuration file and the global flags, flags taking precedence.
func settings(c *cli.Context) (*Config, error) {
	cfg := &Config{}
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet(addressFlag.Name) {
		cfg.Address = c.String(addressFlag.Name)
	}
	if c.IsSet(mtuFlag.Name) {
		cfg.MTU = c.Int(mtuFlag.Name)
	}
	if c.IsSet(timeoutFlag.Name) {
		cfg.Timeout.Duration = c.Duration(timeoutFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = c.String(logLevelFlag.Name)
	}
	if c.IsSet(logFormatFlag.Name) {
		cfg.Log.Format = c.String(logFormatFlag.Name)
	}

	if cfg.Address == "" {
		return nil, cli.Exit("missing device address, use --address or the config file", 2)
	}

	return cfg, nil
}

func newLogger(cfg LogConfig) (logger.Logger, error) {
	level := logger.WarnLevel
	if cfg.Level != "" {
		var ok bool
		if level, ok = logger.ParseLevel(cfg.Level); !ok {
			return nil, fmt.Errorf("unknown log level %q", cfg.Level)
		}
	}

	switch strings.ToLower(cfg.Format) {
	case "", "slog":
		return logger.NewSlogWithWriter(os.Stderr, level, false), nil
	case "zap":
		return logger.NewZap(level, os.Getenv("ENV") == "development")
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// session is an open connection to a device.
type session struct {
	cfg       *Config
	logger    logger.Logger
	transport *udp.Transport
	mgr       *mcumgr.Manager
}

func connect(c *cli.Context) (*session, error) {
	cfg, err := settings(c)
	if err != nil {
		return nil, err
	}

	l, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	udpOpts := []udp.Option{udp.WithLogger(l)}
	if cfg.MTU > 0 {
		udpOpts = append(udpOpts, udp.WithMTU(cfg.MTU))
	}
	udpCfg, err := udp.NewConfig(cfg.Address, udpOpts...)
	if err != nil {
		return nil, err
	}

	transport, err := udp.Dial(c.Context, udpCfg)
	if err != nil {
		return nil, err
	}

	mgrOpts := []mcumgr.ManagerOption{mcumgr.WithLogger(l)}
	if cfg.Timeout.Duration > 0 {
		mgrOpts = append(mgrOpts, mcumgr.WithTimeout(cfg.Timeout.Duration))
	}
	mgr, err := mcumgr.NewManager(c.Context, transport, mgrOpts...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: l, transport: transport, mgr: mgr}, nil
}

func (s *session) Close() {
	_ = s.mgr.Close()
	_ = s.transport.Close()

	if syncer, ok := s.logger.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
}

// withSession runs fn with a connected session.
func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := connect(c)
		if err != nil {
			return err
		}
		defer s.Close()

		return fn(c, s)
	}
}

func echoCommand() *cli.Command {
	return &cli.Command{
		Name:      "echo",
		Usage:     "Send a string to the device and print the echo",
		ArgsUsage: "<message>",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() == 0 {
				return cli.Exit("missing message", 2)
			}

			reply, err := mcumgr.NewOS(s.mgr).Echo(c.Context, strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, reply)

			return nil
		}),
	}
}

func paramsCommand() *cli.Command {
	return &cli.Command{
		Name:  "params",
		Usage: "Print the SMP buffer parameters of the device",
		Action: withSession(func(c *cli.Context, s *session) error {
			params, err := mcumgr.NewOS(s.mgr).Params(c.Context)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(map[string]uint32{
				"buf_size":  params.BufSize,
				"buf_count": params.BufCount,
			})
			if err != nil {
				return err
			}
			_, err = c.App.Writer.Write(out)

			return err
		}),
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Reboot the device",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "bootloader", Usage: "boot into the bootloader"},
			&cli.BoolFlag{Name: "force", Usage: "reset even if the device would refuse"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			mode := mcumgr.BootModeNormal
			if c.Bool("bootloader") {
				mode = mcumgr.BootModeBootloader
			}

			return mcumgr.NewOS(s.mgr).Reset(c.Context, mode, c.Bool("force"))
		}),
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload firmware images",
		ArgsUsage: "<file> [<file>...]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "image", Usage: "image number of the first file, the following files get the next numbers"},
			&cli.IntFlag{Name: "depth", Usage: "number of chunks in flight"},
			&cli.IntFlag{Name: "alignment", Usage: "chunk alignment: 0, 2, 4, 8 or 16"},
			&cli.BoolFlag{Name: "upgrade", Usage: "only accept images newer than the running one"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "do not print progress"},
		},
		Action: withSession(uploadAction),
	}
}

func uploadAction(c *cli.Context, s *session) error {
	if c.NArg() == 0 {
		return cli.Exit("missing image file", 2)
	}

	images := make([]upload.Image, 0, c.NArg())
	for i, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		images = append(images, upload.Image{Image: c.Int("image") + i, Data: data})
	}

	cfg := s.cfg.Upload
	if c.IsSet("depth") {
		cfg.PipelineDepth = c.Int("depth")
	}
	if c.IsSet("alignment") {
		cfg.Alignment = c.Int("alignment")
	}
	if c.IsSet("upgrade") {
		cfg.Upgrade = c.Bool("upgrade")
	}

	opts := []upload.Option{
		upload.WithLogger(s.logger),
		upload.WithAlignment(upload.Alignment(cfg.Alignment)),
		upload.WithUpgrade(cfg.Upgrade),
	}
	if cfg.PipelineDepth > 0 {
		opts = append(opts, upload.WithPipelineDepth(cfg.PipelineDepth))
	}
	if !c.Bool("quiet") {
		opts = append(opts, upload.WithProgress(progressPrinter(c)))
	}

	uploader, err := upload.NewUploader(s.mgr, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := uploader.Upload(c.Context, images); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "uploaded %d image(s) in %s\n", len(images), time.Since(start).Round(time.Millisecond))

	return nil
}

// progressPrinter reports progress on stderr at most once per 10 percent of every image.
func progressPrinter(c *cli.Context) func(upload.Progress) {
	lastImage, lastStep := -1, -1

	return func(p upload.Progress) {
		step := int(p.Offset * 10 / p.Size)
		if p.Image == lastImage && step == lastStep {
			return
		}
		lastImage, lastStep = p.Image, step

		fmt.Fprintf(c.App.ErrWriter, "image %d/%d: %d/%d bytes (%d%%)\n",
			p.Image+1, p.Images, p.Offset, p.Size, p.Offset*100/p.Size)
	}
}

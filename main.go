package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vox/audio"
	"vox/backend"
	"vox/beep"
	"vox/chat"
	"vox/doctor"
	"vox/log"
	"vox/recorder"
	"vox/shutdown"
)

var version = "dev"

const appName = "vox"

var rootCmd = &cobra.Command{
	Use:   "vox",
	Short: "Terminal chat client with voice messages",
	Long: `vox is a terminal chat client. Type a message and press enter, or press
ctrl+r to record a voice message and ctrl+r again to send it.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the microphone, the chat endpoint and the clipboard",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
	},
}

var (
	scriptFlag   bool
	wavFlag      string
	realtimeFlag bool
)

func main() {
	// API keys for serve, and VOX_* overrides
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, audio.ErrSelectionCancelled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("endpoint", backend.DefaultEndpoint, "chat endpoint URL")
	pf.String("device", "", "use named microphone device")
	pf.Bool("setup", false, "select microphone device interactively")
	pf.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	pf.Bool("beep", true, "play start/stop cues while recording")
	pf.Bool("autostop", false, "stop recording after 30s of silence")
	for _, key := range []string{"endpoint", "device", "setup", "logpath", "beep", "autostop"} {
		cobra.CheckErr(viper.BindPFlag(key, pf.Lookup(key)))
	}

	rootCmd.Flags().BoolVar(&scriptFlag, "script", false, "headless mode: read commands from stdin")
	rootCmd.Flags().StringVar(&wavFlag, "wav", "", "WAV file used as the microphone in --script mode")
	rootCmd.Flags().BoolVar(&realtimeFlag, "realtime", false, "replay --wav at device pace instead of all at once")

	rootCmd.AddCommand(devicesCmd, doctorCmd, versionCmd, serveCmd)
}

func configDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, appName)
}

func initConfig() {
	if dir := configDir(); dir != "" {
		viper.AddConfigPath(dir)
	}
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	viper.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
	}
}

// setupLogDir resolves the log directory and routes crash output there.
func setupLogDir() {
	logPath, err := log.ResolveDir(viper.GetString("logpath"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
		return
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
}

func initLogging() {
	setupLogDir()
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
}

// pickDevice resolves --device, or --setup, to a capture device. nil means the
// system default.
func pickDevice(actx audio.Context) (*audio.DeviceInfo, error) {
	if name := viper.GetString("device"); name != "" {
		dev, err := audio.FindDevice(actx, name)
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		if dev == nil {
			log.Warnf("device %q not found, using default", name)
			fmt.Fprintf(os.Stderr, "Warning: device %q not found, using system default\n", name)
		}
		return dev, nil
	}

	if !viper.GetBool("setup") {
		return nil, nil
	}
	dev, err := audio.SelectDevice(actx)
	if errors.Is(err, audio.ErrSelectionCancelled) {
		return nil, err
	}
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\nFalling back to default device\n", err)
		return nil, nil
	}
	return dev, nil
}

func deviceLineText(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return dev.Name + " (BT!)"
	}
	return dev.Name
}

func runChat(cmd *cobra.Command, _ []string) error {
	initLogging()
	defer log.Close()

	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	if scriptFlag {
		return runScript(ctx, scriptOptions{
			WavPath:  wavFlag,
			Realtime: realtimeFlag,
			Endpoint: viper.GetString("endpoint"),
			AutoStop: viper.GetBool("autostop"),
		}, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	if !viper.GetBool("beep") {
		beep.Disable()
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer actx.Close()

	dev, err := pickDevice(actx)
	if err != nil {
		return err
	}

	stats := &sessionStats{}
	client := backend.New(viper.GetString("endpoint"), backend.WithObserver(stats.observe))
	go client.Warm(ctx)

	log.SessionStart(client.Endpoint(), deviceLineText(dev))
	defer func() { log.SessionEnd(stats.Sent()) }()

	view := &tuiTranscript{}
	mic := recorder.New(actx, recorder.Config{
		Device:    dev,
		AutoStop:  viper.GetBool("autostop"),
		OnLevel:   view.level,
		OnSilence: view.silence,
	})
	textFlow := chat.NewTextFlow(client, view)
	audioFlow := chat.NewAudioFlow(mic, client, view)

	model := newTUIModel(ctx, textFlow, audioFlow, stats, client.Endpoint(), deviceLineText(dev))
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	view.program = program

	_, err = program.Run()
	audioFlow.StopRecording()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		log.Errorf("TUI error: %v", err)
	}
	return err
}

func runDevices(cmd *cobra.Command, _ []string) error {
	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer actx.Close()

	devices, err := actx.Devices()
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(devices) == 0 {
		fmt.Fprintln(out, "No capture devices found")
		return nil
	}
	for _, d := range devices {
		suffix := ""
		if audio.IsBluetooth(d.Name) {
			suffix = " (bluetooth)"
		}
		fmt.Fprintf(out, "%s%s\n", d.Name, suffix)
	}
	return nil
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	initLogging()
	defer log.Close()

	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	opts := doctor.Options{
		Out:     cmd.OutOrStdout(),
		Backend: backend.New(viper.GetString("endpoint")),
	}
	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
	} else {
		defer actx.Close()
		opts.Audio = actx
		if name := viper.GetString("device"); name != "" {
			opts.Device, _ = audio.FindDevice(actx, name)
		}
	}

	if code := doctor.Run(ctx, opts); code != 0 {
		return errors.New("some checks failed")
	}
	return nil
}

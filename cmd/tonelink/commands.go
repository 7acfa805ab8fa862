package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/tonelink/internal/config"
	"github.com/teslashibe/tonelink/internal/httpc"
	"github.com/teslashibe/tonelink/internal/log"
	"github.com/teslashibe/tonelink/internal/observe"
	"github.com/teslashibe/tonelink/pkg/batch"
	"github.com/teslashibe/tonelink/pkg/codec"
	"github.com/teslashibe/tonelink/pkg/frame"
	"github.com/teslashibe/tonelink/pkg/pcm"
	"github.com/teslashibe/tonelink/pkg/protocol"
	"github.com/teslashibe/tonelink/pkg/stream"
	"github.com/teslashibe/tonelink/pkg/wavfile"
	"github.com/teslashibe/tonelink/pkg/web"
)

// common holds flags every command accepts.
type common struct {
	configPath string
	preset     string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (TONELINK_* env vars override it)")
	fs.StringVar(&c.preset, "preset", codec.NameTelemetry, "preset name (telemetry/a, literal/b or a configured preset)")
}

// load reads the service config, initializes logging and resolves the preset.
func (c *common) load() (*config.Config, *codec.Registry, codec.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, codec.Config{}, err
	}
	log.Init(cfg.Server.LogLevel)

	reg, err := cfg.Registry()
	if err != nil {
		return nil, nil, codec.Config{}, err
	}
	preset, err := reg.Lookup(c.preset)
	if err != nil {
		return nil, nil, codec.Config{}, err
	}
	return cfg, reg, preset, nil
}

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// encodeFlags selects a payload for encode and send.
type encodeFlags struct {
	values  string
	payload string
	strict  bool
}

func (f *encodeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.values, "values", "", "comma separated values for fixed-point presets")
	fs.StringVar(&f.payload, "payload", "", "integer payload for raw presets (0x/0b prefixes allowed)")
	fs.BoolVar(&f.strict, "strict", false, "fail when a value saturates")
}

func (f *encodeFlags) encode(cfg codec.Config) (*codec.Result, error) {
	var (
		res *codec.Result
		err error
	)
	if cfg.Payload.Kind == codec.PayloadFixed {
		if f.values == "" {
			return nil, fmt.Errorf("preset %s needs -values", cfg.Name)
		}
		item, perr := batch.ParseItem(f.values, cfg.Payload.Kind)
		if perr != nil {
			return nil, perr
		}
		res, err = codec.Encode(cfg, item.Values)
	} else {
		if f.payload == "" {
			return nil, fmt.Errorf("preset %s needs -payload", cfg.Name)
		}
		item, perr := batch.ParseItem(f.payload, cfg.Payload.Kind)
		if perr != nil {
			return nil, perr
		}
		res, err = codec.EncodeRaw(cfg, item.Payload)
	}
	if err != nil {
		return nil, err
	}
	if f.strict {
		if err := res.Err(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func runEncode(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("encode", e)
	var c common
	var ef encodeFlags
	c.register(fs)
	ef.register(fs)
	out := fs.String("o", "", "output WAV path (default <preset>.wav in the output dir)")
	server := fs.String("server", "", "encode on a running service (e.g. http://localhost:8080)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *server != "" {
		return encodeRemote(ctx, e, httpc.New(*server), c, ef, *out)
	}

	cfg, _, preset, err := c.load()
	if err != nil {
		return err
	}
	res, err := ef.encode(preset)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Join(cfg.Output.Dir, preset.Name+".wav")
	}
	if err := codec.WriteFile(path, res); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "frame bits: %s\n", res.Frame.BitString())
	fmt.Fprintf(e.stdout, "frame hex:  %s\n", strings.ToUpper(hex.EncodeToString(res.Bytes)))
	fmt.Fprintf(e.stdout, "samples:    %d (%v)\n", len(res.Samples), preset.Airtime())
	fmt.Fprintf(e.stdout, "level:      peak %d, rms %.3f, duty %.2f\n",
		pcm.Peak(res.Samples), pcm.RMS(res.Samples), pcm.DutyCycle(res.Samples))
	if res.AnySaturated() {
		fmt.Fprintf(e.stdout, "saturated:  %v\n", res.Saturated)
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", path)
	return nil
}

// encodeRemote fetches bare samples from a service and writes the
// container locally. Presets are resolved by the service.
func encodeRemote(ctx context.Context, e *env, client *httpc.Client, c common, ef encodeFlags, out string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	log.Init(cfg.Server.LogLevel)

	req := web.EncodeRequest{Preset: c.preset}
	switch {
	case ef.values != "":
		item, err := batch.ParseItem(ef.values, codec.PayloadFixed)
		if err != nil {
			return err
		}
		req.Values = item.Values
	case ef.payload != "":
		item, err := batch.ParseItem(ef.payload, codec.PayloadRaw)
		if err != nil {
			return err
		}
		req.Payload = item.Payload
	default:
		return fmt.Errorf("encode -server needs -values or -payload")
	}

	res, err := client.EncodePCM(ctx, req)
	if err != nil {
		return err
	}

	path := out
	if path == "" {
		path = filepath.Join(cfg.Output.Dir, c.preset+".wav")
	}
	if err := wavfile.WriteFile(path, res.Samples, res.SampleRate); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "frame bits: %s\n", frame.BitString(res.Frame))
	fmt.Fprintf(e.stdout, "frame hex:  %s\n", strings.ToUpper(hex.EncodeToString(res.Frame)))
	fmt.Fprintf(e.stdout, "samples:    %d at %d Hz\n", len(res.Samples), res.SampleRate)
	fmt.Fprintf(e.stdout, "level:      peak %d, rms %.3f, duty %.2f\n",
		pcm.Peak(res.Samples), pcm.RMS(res.Samples), pcm.DutyCycle(res.Samples))
	fmt.Fprintf(e.stdout, "wrote %s\n", path)
	return nil
}

func runDecode(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("decode", e)
	var c common
	c.register(fs)
	hexIn := fs.String("hex", "", "frame bytes as hex")
	scan := fs.Bool("scan", false, "search the input for every valid frame")
	server := fs.String("server", "", "decode on a running service (e.g. http://localhost:8080)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(*hexIn), "0x"))
	if err != nil {
		return fmt.Errorf("decode -hex: %w", err)
	}
	if *server != "" {
		return decodeRemote(ctx, e, httpc.New(*server), c.preset, b, *scan)
	}

	_, _, preset, err := c.load()
	if err != nil {
		return err
	}

	var found []*codec.Decoded
	if *scan {
		found, err = codec.Scan(preset, b)
	} else {
		var d *codec.Decoded
		d, err = codec.Decode(preset, b)
		found = []*codec.Decoded{d}
	}
	if err != nil {
		return err
	}

	for _, d := range found {
		fmt.Fprintf(e.stdout, "wake=0x%X data=0x%X checksum=0x%X expected=0x%X wake_ok=%t checksum_ok=%t",
			d.Wake, d.Data, d.Checksum, d.Expected, d.WakeOK, d.ChecksumOK)
		if d.Values != nil {
			fmt.Fprintf(e.stdout, " values=%v", d.Values)
		}
		fmt.Fprintln(e.stdout)
	}
	if !*scan {
		return found[0].Err()
	}
	return nil
}

func decodeRemote(ctx context.Context, e *env, client *httpc.Client, preset string, b []byte, scan bool) error {
	var frames []protocol.DecodedData
	if scan {
		res, err := client.Scan(ctx, preset, b)
		if err != nil {
			return err
		}
		frames = res.Frames
	} else {
		d, err := client.Decode(ctx, preset, b)
		if err != nil {
			return err
		}
		frames = []protocol.DecodedData{*d}
	}

	for _, d := range frames {
		fmt.Fprintf(e.stdout, "wake=0x%X data=0x%X checksum=0x%X expected=0x%X wake_ok=%t checksum_ok=%t",
			d.Wake, d.Data, d.Checksum, d.Expected, d.WakeOK, d.ChecksumOK)
		if d.Values != nil {
			fmt.Fprintf(e.stdout, " values=%v", d.Values)
		}
		fmt.Fprintln(e.stdout)
	}
	return nil
}

func runPresets(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("presets", e)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, reg, _, err := c.load()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tWAKE\tBITS\tBYTES\tSAMPLES\tAIRTIME\tCARRIER\tPAYLOAD")
	for _, name := range reg.Names() {
		p, _ := reg.Lookup(name)
		fmt.Fprintf(tw, "%s\t0x%X/%d\t%d\t%d\t%d\t%v\t%gHz\t%s\n",
			p.Name, p.Frame.WakePattern, p.Frame.WakeBits, p.Frame.Bits(), p.FrameBytes(),
			p.SampleCount(), p.Airtime(), p.Tone.CarrierHz, p.Payload.Kind)
	}
	return tw.Flush()
}

func runBatch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("batch", e)
	var c common
	c.register(fs)
	in := fs.String("in", "-", "input file, one item per line (- for stdin)")
	dir := fs.String("dir", "", "output directory (default from config)")
	conc := fs.Int("concurrency", 0, "frames encoded at once (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, preset, err := c.load()
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.Output.Dir = *dir
	}
	if *conc > 0 {
		cfg.Output.Concurrency = *conc
	}

	r := e.stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	items, err := batch.ParseItems(r, preset.Payload.Kind)
	if err != nil {
		return err
	}

	cd, err := codec.New(preset)
	if err != nil {
		return err
	}
	out, err := batch.NewWriter(cd, cfg.Output.Dir, batch.WithConcurrency(cfg.Output.Concurrency)).Run(ctx, items)
	if err != nil {
		return err
	}
	for _, o := range out {
		fmt.Fprintf(e.stdout, "%d\t%s\n", o.Index, o.Path)
	}
	return nil
}

func runServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("serve", e)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, reg, _, err := c.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Listen = *addr
	}

	shutdown, err := observe.InitProvider()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer shutdown(context.Background())

	srv := web.NewServer(web.Config{
		Addr:        cfg.Server.Listen,
		OutputDir:   cfg.Output.Dir,
		Concurrency: cfg.Output.Concurrency,
	}, reg)
	return srv.Start(ctx)
}

func runListen(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("listen", e)
	url := fs.String("url", "ws://localhost:8080/ws/events", "event stream URL")
	count := fs.Int("count", 0, "exit after this many events (0 = until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", *url, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ping, err := protocol.NewPingMessage(uuid.NewString())
	if err != nil {
		return err
	}
	data, err := ping.Bytes()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	for seen := 0; *count == 0 || seen < *count; seen++ {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if kind == websocket.BinaryMessage {
			fmt.Fprintf(e.stdout, "audio %d bytes\n", len(data))
			continue
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			log.Warn("skipping malformed event", "error", err)
			continue
		}
		if msg.Type == protocol.TypePong {
			if pong, err := msg.GetPongData(); err == nil {
				fmt.Fprintf(e.stdout, "connected, round trip %dms\n", pong.LatencyMs)
				continue
			}
		}
		fmt.Fprintf(e.stdout, "%d %s %s\n", msg.Timestamp, msg.Type, msg.Data)
	}
	return nil
}

func runSend(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("send", e)
	var c common
	var ef encodeFlags
	c.register(fs)
	ef.register(fs)
	target := fs.String("target", "", "UDP host:port (default from config)")
	burst := fs.Bool("burst", false, "send packets back to back instead of in real time")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, preset, err := c.load()
	if err != nil {
		return err
	}
	if *target != "" {
		cfg.Stream.Target = *target
	}
	res, err := ef.encode(preset)
	if err != nil {
		return err
	}

	var opts []stream.SenderOption
	if *burst {
		opts = append(opts, stream.WithoutPacing())
	}
	s, err := stream.Dial(ctx, cfg.Stream.Target, preset.Tone.SampleRate, cfg.Stream.PacketDuration, cfg.Stream.SSRC, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Send(ctx, res.Samples); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "sent %s to %s\n", strings.ToUpper(hex.EncodeToString(res.Bytes)), cfg.Stream.Target)
	return nil
}

func runReceive(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("receive", e)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "UDP listen address (default: port of the configured stream target)")
	out := fs.String("o", "", "output WAV path (default <preset>-received.wav in the output dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, preset, err := c.load()
	if err != nil {
		return err
	}
	if *addr == "" {
		_, port, err := net.SplitHostPort(cfg.Stream.Target)
		if err != nil {
			return err
		}
		*addr = ":" + port
	}

	conn, err := net.ListenPacket("udp", *addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", *addr, err)
	}
	defer conn.Close()
	log.Info("waiting for frame", "addr", conn.LocalAddr().String(), "preset", preset.Name)

	samples, err := receiveFrame(ctx, conn, preset, cfg.Stream.PacketDuration)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Join(cfg.Output.Dir, preset.Name+"-received.wav")
	}
	if err := wavfile.WriteFile(path, samples, preset.Tone.SampleRate); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "received %d samples, peak %d, duty %.2f\n",
		len(samples), pcm.Peak(samples), pcm.DutyCycle(samples))
	fmt.Fprintf(e.stdout, "wrote %s\n", path)
	return nil
}

// receiveFrame collects the RTP packets of one frame of preset from conn.
func receiveFrame(ctx context.Context, conn net.PacketConn, preset codec.Config, length time.Duration) ([]int16, error) {
	pk, err := stream.NewPacketizer(preset.Tone.SampleRate, length, 0)
	if err != nil {
		return nil, err
	}
	want := preset.SampleCount()
	n := (want + pk.SamplesPerPacket() - 1) / pk.SamplesPerPacket()

	pkts, err := stream.Receive(ctx, conn, n)
	if err != nil {
		return nil, err
	}
	samples := stream.Depacketize(pkts)
	if len(samples) < want {
		return nil, fmt.Errorf("received %d samples, frame needs %d", len(samples), want)
	}
	return samples[:want], nil
}

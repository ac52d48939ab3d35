// Package paint holds the state behind the painting UI and the single
// request it sends to Workers AI.
package paint

import (
	"context"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blacktop/sdpaint/internal/cloudflare"
)

// Runner executes a text-to-image request. *cloudflare.Client implements it.
type Runner interface {
	Run(ctx context.Context, creds cloudflare.Credentials, modelPath string, req cloudflare.TextToImageRequest) ([]byte, string, error)
}

// Options configure a Controller.
type Options struct {
	// Mode decides whether missing credentials fail New or only raise the warning.
	Mode CredentialMode
	// Credentials override the environment per field when non-empty.
	Credentials cloudflare.Credentials
	// EnvFiles are loaded with godotenv before reading the environment.
	// Empty means ".env".
	EnvFiles []string
	// SkipEnv disables reading credentials from the environment.
	SkipEnv bool
	// Config holds the initial form values. Nil means DefaultConfiguration.
	Config *Configuration
	Client Runner
	Logger *log.Logger
}

// State is a copy of everything a front-end renders.
type State struct {
	Config      Configuration
	Credentials cloudflare.Credentials
	Warning     bool // credentials incomplete
	Loading     bool
	Image       Image
	LastError   error // reason the last generation failed, nil after a success
}

// Controller owns the UI-bound painting state.
type Controller struct {
	mu       sync.Mutex
	cfg      Configuration
	creds    cloudflare.Credentials
	warning  bool
	loading  bool
	image    Image
	lastErr  error
	envFiles []string

	client Runner
	logger *log.Logger

	// notifyMu is held from taking a snapshot until every subscriber has
	// seen it, so observers receive snapshots in the order they were taken.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     map[int]func(State)
	nextID   int
}

// New creates a controller and loads credentials according to opts.Mode.
func New(opts Options) (*Controller, error) {
	c := &Controller{
		cfg:      DefaultConfiguration(),
		image:    PlaceholderImage(),
		envFiles: opts.EnvFiles,
		client:   opts.Client,
		logger:   opts.Logger,
		subs:     make(map[int]func(State)),
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.client == nil {
		c.client = cloudflare.NewClient(cloudflare.WithLogger(c.logger))
	}
	if opts.Config != nil {
		if _, err := cloudflare.ModelPath(opts.Config.Model); err != nil {
			return nil, err
		}
		c.cfg = *opts.Config
	}

	if !opts.SkipEnv {
		if err := c.LoadCredentials(); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	if opts.Credentials.AccountID != "" {
		c.creds.AccountID = opts.Credentials.AccountID
	}
	if opts.Credentials.APIToken != "" {
		c.creds.APIToken = opts.Credentials.APIToken
	}
	c.warning = !c.creds.Complete()
	creds := c.creds
	c.mu.Unlock()

	if !creds.Complete() && opts.Mode == ModeAbort {
		var missing []string
		if creds.APIToken == "" {
			missing = append(missing, EnvAPIToken)
		}
		if creds.AccountID == "" {
			missing = append(missing, EnvAccountID)
		}
		return nil, missingError(missing)
	}
	return c, nil
}

// LoadCredentials reads CLOUDFLARE_API_TOKEN and CLOUDFLARE_ACCOUNT_ID,
// loading the env files first. Absent variables leave the field empty and
// raise the warning flag.
func (c *Controller) LoadCredentials() error {
	if err := LoadDotEnv(c.logger, c.envFiles...); err != nil {
		return err
	}
	creds, missing := credentialsFromEnv()
	if len(missing) > 0 {
		c.logger.Warn("Credentials not configured", "missing", strings.Join(missing, ","))
	}
	c.update(func() {
		c.creds = creds
		c.warning = len(missing) > 0
	})
	return nil
}

// SetCredentials overwrites both credential fields from user input.
func (c *Controller) SetCredentials(accountID, apiToken string) {
	c.update(func() {
		c.creds = cloudflare.Credentials{AccountID: accountID, APIToken: apiToken}
		c.warning = !c.creds.Complete()
	})
}

// SetModel selects a model by label.
func (c *Controller) SetModel(label string) error {
	if _, err := cloudflare.ModelPath(label); err != nil {
		return err
	}
	c.update(func() { c.cfg.Model = label })
	return nil
}

// SetPrompt replaces the prompt text.
func (c *Controller) SetPrompt(prompt string) {
	c.update(func() { c.cfg.Prompt = prompt })
}

// SetGuidanceScale parses raw as an integer; invalid input is logged and ignored.
func (c *Controller) SetGuidanceScale(raw string) bool {
	return c.setInt("guidance", raw, func(v int) { c.cfg.GuidanceScale = v })
}

// SetSteps parses raw as an integer; invalid input is logged and ignored.
func (c *Controller) SetSteps(raw string) bool {
	return c.setInt("steps", raw, func(v int) { c.cfg.Steps = v })
}

func (c *Controller) setInt(field, raw string, set func(int)) bool {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		c.logger.Warn("Value was not parsable as an int, ignored", "field", field, "value", raw)
		return false
	}
	c.update(func() { set(v) })
	return true
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	return State{
		Config:      c.cfg,
		Credentials: c.creds,
		Warning:     c.warning,
		Loading:     c.loading,
		Image:       c.image,
		LastError:   c.lastErr,
	}
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription. fn may call Snapshot but must
// not modify the controller.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// update applies fn under the state lock and then notifies subscribers.
func (c *Controller) update(fn func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	fn()
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
}

func (c *Controller) notify(st State) {
	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

type job struct {
	cfg   Configuration
	creds cloudflare.Credentials
	start time.Time
}

// begin flips the loading flag and captures the request parameters.
func (c *Controller) begin() (job, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return job{}, ErrBusy
	}
	c.loading = true
	j := job{cfg: c.cfg, creds: c.creds, start: time.Now()}
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
	return j, nil
}

// Generate sends one request built from the current configuration and
// blocks until it resolves. Loading is true for the duration of the call.
// On any failure the placeholder is shown again and the reason is returned
// in the Result.
func (c *Controller) Generate(ctx context.Context) Result {
	j, err := c.begin()
	if err != nil {
		return Result{Image: c.Snapshot().Image, Err: err}
	}
	return c.execute(ctx, j)
}

// Start is the asynchronous form of Generate. Loading is already true when
// Start returns; the channel yields exactly one Result. Canceling ctx aborts
// the in-flight request.
func (c *Controller) Start(ctx context.Context) (<-chan Result, error) {
	j, err := c.begin()
	if err != nil {
		return nil, err
	}
	ch := make(chan Result, 1)
	go func() {
		ch <- c.execute(ctx, j)
		close(ch)
	}()
	return ch, nil
}

func (c *Controller) execute(ctx context.Context, j job) Result {
	img, err := c.request(ctx, j)
	if err != nil {
		c.logger.Error("Image generation failed", "model", j.cfg.Model, "err", err)
		img = PlaceholderImage()
	} else {
		c.logger.Info("Image generated", "model", j.cfg.Model, "format", img.Format, "elapsed", time.Since(j.start).Round(time.Millisecond))
	}

	c.update(func() {
		c.image = img
		c.lastErr = err
		c.loading = false
	})

	return Result{Image: img, Err: err, Elapsed: time.Since(j.start)}
}

func (c *Controller) request(ctx context.Context, j job) (Image, error) {
	modelPath, err := cloudflare.ModelPath(j.cfg.Model)
	if err != nil {
		return Image{}, &GenerateError{Kind: FailureConfig, Err: err}
	}
	data, contentType, err := c.client.Run(ctx, j.creds, modelPath, cloudflare.TextToImageRequest{
		Prompt:   j.cfg.Prompt,
		NumSteps: j.cfg.Steps,
		Guidance: j.cfg.GuidanceScale,
	})
	if err != nil {
		return Image{}, classify(ctx, err)
	}
	// a 200 with a JSON body is an API envelope, not an image
	if mt, _, _ := mime.ParseMediaType(contentType); mt == "application/json" {
		return Image{}, &GenerateError{Kind: FailureDecode, Err: fmt.Errorf("unexpected content type %s: %s", mt, truncate(data, 256))}
	}
	img, err := DecodeImage(data)
	if err != nil {
		return Image{}, &GenerateError{Kind: FailureDecode, Err: fmt.Errorf("%d bytes (%s): %w", len(data), contentType, err)}
	}
	c.logger.Debug("Decoded image", "format", img.Format, "content-type", contentType)
	return img, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.TrimSpace(string(b))
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"mintWatch/internal/metadata"
	"mintWatch/internal/model"
	"mintWatch/internal/nft"
)

const (
	defaultTransfersWindow = 5000
	defaultTransfersLimit  = 5
	defaultMaxListedTokens = 50
)

// Contract is the read surface of the tracked collection used by commands.
type Contract interface {
	HasMethod(method string) bool
	TotalMinted(ctx context.Context) (*big.Int, error)
	RemainingSupply(ctx context.Context) (*big.Int, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error)
	TokenDetails(ctx context.Context, tokenID *big.Int) ([]nft.Field, error)
	RecentTransfers(ctx context.Context, window uint64, limit int) ([]model.TransferEvent, error)
}

// MetadataResolver looks up token metadata, reporting failures.
type MetadataResolver interface {
	Resolve(ctx context.Context, tokenID *big.Int) (model.TokenMetadata, error)
}

// Metrics records handled commands.
type Metrics interface {
	ObserveCommand(command string, err error)
}

// InputError is a missing or malformed command argument.
type InputError struct {
	Command string
	Reason  string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("/%s: %s", e.Command, e.Reason)
}

// Reply is one chat message. ImageURL, when set, is sent as a photo with Text as caption.
type Reply struct {
	Text     string
	ImageURL string
}

// Config tunes the command handlers.
type Config struct {
	TransfersWindow uint64
	TransfersLimit  int
	MaxListedTokens int
	// RatePerSecond caps contract calls issued by commands; zero disables the cap.
	RatePerSecond int
}

type handler struct {
	usage   string
	summary string
	errText string
	run     func(c *Commands, ctx context.Context, args []string) ([]Reply, error)
}

// Commands answers chat queries about the collection. It holds no state
// shared with the poller and is safe for concurrent use.
type Commands struct {
	contract Contract
	metadata MetadataResolver
	limiter  ratelimit.Limiter
	cfg      Config
	metrics  Metrics
	logger   *zap.Logger
	handlers map[string]handler
	order    []string
}

func NewCommands(contract Contract, resolver MetadataResolver, cfg Config, metrics Metrics, logger *zap.Logger) *Commands {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TransfersWindow == 0 {
		cfg.TransfersWindow = defaultTransfersWindow
	}
	if cfg.TransfersLimit <= 0 {
		cfg.TransfersLimit = defaultTransfersLimit
	}
	if cfg.MaxListedTokens <= 0 {
		cfg.MaxListedTokens = defaultMaxListedTokens
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RatePerSecond > 0 {
		limiter = ratelimit.New(cfg.RatePerSecond)
	}

	c := &Commands{
		contract: contract,
		metadata: resolver,
		limiter:  limiter,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
	c.register("mintcount", handler{usage: "/mintcount", summary: "minted and remaining supply", errText: "fetching mint count", run: (*Commands).mintCount})
	c.register("latest", handler{usage: "/latest", summary: "latest minted token", errText: "fetching latest token", run: (*Commands).latest})
	c.register("preview", handler{usage: "/preview <token_id>", summary: "token image and traits", errText: "fetching token", run: (*Commands).preview})
	c.register("owner", handler{usage: "/owner <token_id>", summary: "current owner of a token", errText: "fetching owner", run: (*Commands).owner})
	c.register("rarity", handler{usage: "/rarity <token_id>", summary: "rarity details of a token", errText: "fetching rarity", run: (*Commands).rarity})
	c.register("traits", handler{usage: "/traits <token_id>", summary: "alias of /rarity", errText: "fetching rarity", run: (*Commands).rarity})
	c.register("mytokens", handler{usage: "/mytokens <address>", summary: "tokens held by an address", errText: "fetching tokens", run: (*Commands).myTokens})
	c.register("transfers", handler{usage: "/transfers", summary: "recent transfers", errText: "fetching transfers", run: (*Commands).transfers})
	c.register("help", handler{usage: "/help", summary: "this message", run: (*Commands).help})
	c.register("start", handler{usage: "/start", summary: "alias of /help", run: (*Commands).help})
	return c
}

func (c *Commands) register(name string, h handler) {
	if c.handlers == nil {
		c.handlers = make(map[string]handler)
	}
	c.handlers[name] = h
	c.order = append(c.order, name)
}

// Known reports whether name is a registered command.
func (c *Commands) Known(name string) bool {
	_, ok := c.handlers[normalize(name)]
	return ok
}

// Dispatch runs a command and always returns at least one reply. Failures
// are rendered as error text.
func (c *Commands) Dispatch(ctx context.Context, name, args string) []Reply {
	name = normalize(name)
	h, ok := c.handlers[name]
	if !ok {
		return []Reply{{Text: fmt.Sprintf("Unknown command /%s. Try /help.", name)}}
	}

	replies, err := h.run(c, ctx, strings.Fields(args))
	if c.metrics != nil {
		c.metrics.ObserveCommand(name, err)
	}
	if err == nil {
		return replies
	}

	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return append(replies, Reply{Text: fmt.Sprintf("⚠️ %s\nUsage: %s", inputErr.Reason, h.usage)})
	}
	c.logger.Warn("command failed", zap.String("command", name), zap.String("args", args), zap.Error(err))
	return append(replies, Reply{Text: fmt.Sprintf("⚠️ Error %s: %v", h.errText, err)})
}

func (c *Commands) mintCount(ctx context.Context, _ []string) ([]Reply, error) {
	c.limiter.Take()
	total, err := c.contract.TotalMinted(ctx)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("🧮 Mint Count\nTotal Minted: %s", total)
	if c.contract.HasMethod("remainingSupply") {
		c.limiter.Take()
		remaining, err := c.contract.RemainingSupply(ctx)
		if err != nil {
			return nil, err
		}
		text += fmt.Sprintf("\nRemaining Supply: %s", remaining)
	}
	return []Reply{{Text: text}}, nil
}

func (c *Commands) latest(ctx context.Context, _ []string) ([]Reply, error) {
	c.limiter.Take()
	total, err := c.contract.TotalMinted(ctx)
	if err != nil {
		return nil, err
	}
	if total.Sign() <= 0 {
		return []Reply{{Text: "No tokens minted yet."}}, nil
	}
	tokenID := new(big.Int).Sub(total, big.NewInt(1))

	c.limiter.Take()
	uri, err := c.contract.TokenURI(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	replies := []Reply{{Text: fmt.Sprintf("🆕 Latest NFT Minted\nToken ID: %s\n%s", tokenID, uri)}}

	preview, err := c.previewToken(ctx, tokenID)
	if err != nil {
		return replies, err
	}
	return append(replies, preview), nil
}

func (c *Commands) preview(ctx context.Context, args []string) ([]Reply, error) {
	tokenID, err := parseTokenID("preview", args)
	if err != nil {
		return nil, err
	}
	reply, err := c.previewToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return []Reply{reply}, nil
}

// previewToken fails only when the token URI cannot be read. A document
// that cannot be fetched or decoded yields a preview with default fields.
func (c *Commands) previewToken(ctx context.Context, tokenID *big.Int) (Reply, error) {
	c.limiter.Take()
	meta, err := c.metadata.Resolve(ctx, tokenID)
	if err != nil {
		var metaErr *metadata.Error
		if errors.As(err, &metaErr) && metaErr.Stage == metadata.StageTokenURI {
			return Reply{}, metaErr.Err
		}
		c.logger.Debug("preview with default metadata", zap.String("token_id", tokenID.String()), zap.Error(err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🖼️ %s\nToken ID: %s", meta.Name, tokenID)
	if len(meta.Attributes) > 0 {
		b.WriteString("\n")
		writeAttributes(&b, meta.Attributes)
	}
	return Reply{Text: b.String(), ImageURL: meta.ImageURI}, nil
}

func (c *Commands) owner(ctx context.Context, args []string) ([]Reply, error) {
	tokenID, err := parseTokenID("owner", args)
	if err != nil {
		return nil, err
	}
	c.limiter.Take()
	owner, err := c.contract.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return []Reply{{Text: fmt.Sprintf("🏠 Token %s is owned by:\n%s", tokenID, owner.Hex())}}, nil
}

func (c *Commands) rarity(ctx context.Context, args []string) ([]Reply, error) {
	tokenID, err := parseTokenID("rarity", args)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	if c.contract.HasMethod("getTokenDetails") {
		c.limiter.Take()
		fields, err := c.contract.TokenDetails(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "📊 Rarity Details for Token %s:", tokenID)
		for _, field := range fields {
			fmt.Fprintf(&b, "\n%s: %s", field.Name, field.Value)
		}
		return []Reply{{Text: b.String()}}, nil
	}

	c.limiter.Take()
	meta, err := c.metadata.Resolve(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if len(meta.Attributes) == 0 {
		return []Reply{{Text: fmt.Sprintf("No traits found for token %s.", tokenID)}}, nil
	}
	fmt.Fprintf(&b, "📊 Traits of %s:\n", meta.Name)
	writeAttributes(&b, meta.Attributes)
	return []Reply{{Text: b.String()}}, nil
}

func (c *Commands) myTokens(ctx context.Context, args []string) ([]Reply, error) {
	if len(args) == 0 {
		return nil, &InputError{Command: "mytokens", Reason: "missing address"}
	}
	if !common.IsHexAddress(args[0]) {
		return nil, &InputError{Command: "mytokens", Reason: fmt.Sprintf("invalid address %q", args[0])}
	}
	owner := common.HexToAddress(args[0])

	c.limiter.Take()
	balance, err := c.contract.BalanceOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return []Reply{{Text: fmt.Sprintf("🎒 %s owns no tokens.", owner.Hex())}}, nil
	}

	count := c.cfg.MaxListedTokens
	if balance.IsInt64() && balance.Int64() < int64(count) {
		count = int(balance.Int64())
	}

	tokens := make([]string, 0, count)
	for i := 0; i < count; i++ {
		c.limiter.Take()
		tokenID, err := c.contract.TokenOfOwnerByIndex(ctx, owner, big.NewInt(int64(i)))
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tokenID.String())
	}

	text := fmt.Sprintf("🎒 %s owns %s tokens:\n%s", owner.Hex(), balance, strings.Join(tokens, ", "))
	if big.NewInt(int64(count)).Cmp(balance) < 0 {
		text += fmt.Sprintf("\n(showing first %d)", count)
	}
	return []Reply{{Text: text}}, nil
}

func (c *Commands) transfers(ctx context.Context, _ []string) ([]Reply, error) {
	c.limiter.Take()
	events, err := c.contract.RecentTransfers(ctx, c.cfg.TransfersWindow, c.cfg.TransfersLimit)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return []Reply{{Text: "No recent transfers."}}, nil
	}

	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, fmt.Sprintf("🔄 Token %s from %s to %s", event.TokenID, event.From.Hex(), event.To.Hex()))
	}
	return []Reply{{Text: strings.Join(lines, "\n")}}, nil
}

func (c *Commands) help(context.Context, []string) ([]Reply, error) {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, name := range c.order {
		h := c.handlers[name]
		fmt.Fprintf(&b, "\n%s - %s", h.usage, h.summary)
	}
	return []Reply{{Text: b.String()}}, nil
}

func parseTokenID(command string, args []string) (*big.Int, error) {
	if len(args) == 0 {
		return nil, &InputError{Command: command, Reason: "missing token id"}
	}
	tokenID, ok := new(big.Int).SetString(strings.TrimPrefix(args[0], "#"), 10)
	if !ok || tokenID.Sign() < 0 {
		return nil, &InputError{Command: command, Reason: fmt.Sprintf("invalid token id %q", args[0])}
	}
	return tokenID, nil
}

func writeAttributes(b *strings.Builder, attrs []model.Attribute) {
	for i, attr := range attrs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%s: %s", attr.TraitType, attr.Value)
	}
}

func normalize(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

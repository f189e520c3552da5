package guildlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Guildline HTTP API client. Writes identify as ActorID.
type Client struct {
	BaseURL    string
	GuildID    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, guildID, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		GuildID: guildID,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Job represents the API job model (partial).
type Job struct {
	ID              string   `json:"id"`
	GuildID         string   `json:"guildId"`
	Title           string   `json:"title"`
	TotalBudget     float64  `json:"totalBudget"`
	Status          string   `json:"status"`
	AssignedMembers []string `json:"assignedMembers"`
	ContractID      string   `json:"contractId,omitempty"`
}

// Milestone is a contract payment step.
type Milestone struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	PaymentPercentage float64 `json:"paymentPercentage"`
	IsCompleted       bool    `json:"isCompleted"`
}

// Contract represents the API contract model (partial).
type Contract struct {
	ID                 string             `json:"id"`
	JobID              string             `json:"jobId"`
	Status             string             `json:"status"`
	TotalAmount        float64            `json:"totalAmount"`
	Milestones         []Milestone        `json:"milestones"`
	MemberVotes        map[string]string  `json:"memberVotes"`
	RequiredApprovals  int                `json:"requiredApprovals"`
	CurrentApprovals   int                `json:"currentApprovals"`
	DistributedAmounts map[string]float64 `json:"distributedAmounts,omitempty"`
}

// Vault is the guild treasury.
type Vault struct {
	GuildID        string  `json:"guildId"`
	Balance        float64 `json:"balance"`
	SeedBalance    float64 `json:"seedBalance"`
	WorkshopFund   float64 `json:"workshopFund"`
	TotalEarned    float64 `json:"totalEarned"`
	TotalDeposited float64 `json:"totalDeposited"`
	TotalWithdrawn float64 `json:"totalWithdrawn"`
	Version        int64   `json:"version"`
}

// Transaction is a vault ledger entry.
type Transaction struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	InitiatedBy string  `json:"initiatedBy"`
	Category    string  `json:"category,omitempty"`
	Status      string  `json:"status"`
}

// VaultResult is the vault after a deposit or withdrawal.
type VaultResult struct {
	Vault       Vault       `json:"vault"`
	Transaction Transaction `json:"transaction"`
}

// Payout is a computed profit distribution.
type Payout struct {
	Mode         string             `json:"mode"`
	Total        float64            `json:"total"`
	GuildMaster  float64            `json:"guildMaster"`
	Vault        float64            `json:"vault"`
	Participants map[string]float64 `json:"participants"`
}

// Completion is the result of completing a contract.
type Completion struct {
	Contract Contract `json:"contract"`
	Job      Job      `json:"job"`
	Payout   Payout   `json:"payout"`
	Vault    Vault    `json:"vault"`
}

// Workshop represents the API workshop model (partial).
type Workshop struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Cost           float64  `json:"cost"`
	FundingStatus  string   `json:"fundingStatus"`
	SkillsImproved []string `json:"skillsImproved"`
}

// Funding is the result of funding a workshop.
type Funding struct {
	Vault       Vault       `json:"vault"`
	Transaction Transaction `json:"transaction"`
	Workshop    Workshop    `json:"workshop"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	GuildID    string `json:"guildId"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payloadJson"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope
// when the body has one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsInsufficientFunds reports whether err is a rejected vault debit.
func IsInsufficientFunds(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "insufficient_funds"
}

// CreateJob creates a job with the guild's default distribution policy.
func (c *Client) CreateJob(ctx context.Context, title string, budget float64) (Job, error) {
	body := map[string]any{
		"title":       title,
		"totalBudget": budget,
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, c.guildPath("jobs"), body, &resp)
	return resp, err
}

// GetJob fetches a job by id.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, c.guildPath("jobs/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// AssignMembers sets the members working on a job.
func (c *Client) AssignMembers(ctx context.Context, jobID string, members []string) (Job, error) {
	var resp Job
	endpoint := c.guildPath(fmt.Sprintf("jobs/%s/assign", url.PathEscape(jobID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"memberIds": members}, &resp)
	return resp, err
}

// CreateContract drafts the contract for a job using the configured milestones.
func (c *Client) CreateContract(ctx context.Context, jobID string, terms []string) (Contract, error) {
	body := map[string]any{"jobId": jobID}
	if len(terms) > 0 {
		body["terms"] = terms
	}
	var resp Contract
	err := c.do(ctx, http.MethodPost, c.guildPath("contracts"), body, &resp)
	return resp, err
}

// Vote casts the client actor's vote, "accept" or "reject".
func (c *Client) Vote(ctx context.Context, contractID, vote string) (Contract, error) {
	var resp Contract
	endpoint := c.guildPath(fmt.Sprintf("contracts/%s/votes", url.PathEscape(contractID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"vote": vote}, &resp)
	return resp, err
}

// CompleteContract distributes the actual earnings of an approved contract.
func (c *Client) CompleteContract(ctx context.Context, contractID string, earnings float64) (Completion, error) {
	var resp Completion
	endpoint := c.guildPath(fmt.Sprintf("contracts/%s/complete", url.PathEscape(contractID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"actualEarnings": earnings}, &resp)
	return resp, err
}

// InitVault creates the vault from the configured seed if it does not exist yet.
func (c *Client) InitVault(ctx context.Context) (Vault, error) {
	var resp struct {
		Vault Vault `json:"vault"`
	}
	err := c.do(ctx, http.MethodPost, c.guildPath("vault/init"), nil, &resp)
	return resp.Vault, err
}

// GetVault returns the guild vault.
func (c *Client) GetVault(ctx context.Context) (Vault, error) {
	var resp Vault
	err := c.do(ctx, http.MethodGet, c.guildPath("vault"), nil, &resp)
	return resp, err
}

// Deposit adds funds to the vault.
func (c *Client) Deposit(ctx context.Context, amount float64, description string) (VaultResult, error) {
	var resp VaultResult
	body := map[string]any{"amount": amount, "description": description}
	err := c.do(ctx, http.MethodPost, c.guildPath("vault/deposits"), body, &resp)
	return resp, err
}

// Withdraw removes funds from the vault. category may be empty.
func (c *Client) Withdraw(ctx context.Context, amount float64, description, category string) (VaultResult, error) {
	var resp VaultResult
	body := map[string]any{"amount": amount, "description": description}
	if category != "" {
		body["category"] = category
	}
	err := c.do(ctx, http.MethodPost, c.guildPath("vault/withdrawals"), body, &resp)
	return resp, err
}

// CreateWorkshop creates a workshop with the guild's workshop defaults.
func (c *Client) CreateWorkshop(ctx context.Context, title string, cost float64, skills []string) (Workshop, error) {
	body := map[string]any{"title": title, "cost": cost}
	if len(skills) > 0 {
		body["skillsImproved"] = skills
	}
	var resp Workshop
	err := c.do(ctx, http.MethodPost, c.guildPath("workshops"), body, &resp)
	return resp, err
}

// FundWorkshop pays a workshop from the vault.
func (c *Client) FundWorkshop(ctx context.Context, workshopID string) (Funding, error) {
	var resp Funding
	endpoint := c.guildPath(fmt.Sprintf("workshops/%s/fund", url.PathEscape(workshopID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.guildPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) guildPath(p string) string {
	guild := url.PathEscape(c.GuildID)
	return fmt.Sprintf("v0/guilds/%s/%s", guild, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// As returns a copy of the client acting as actorID.
func (c *Client) As(actorID string) *Client {
	cp := *c
	cp.ActorID = actorID
	return &cp
}

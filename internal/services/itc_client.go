package services

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "net/http"
  "os"
  "strconv"
  "strings"
  "time"

  "github.com/orionsky/obsdb-backend/internal/logger"
  "github.com/orionsky/obsdb-backend/internal/types"
)

// ItcInput bundles everything the Integration Time Calculator needs for one
// observation.
type ItcInput struct {
  Observation *types.Observation   `json:"observation"`
  Mode        *types.GmosLongSlit  `json:"mode,omitempty"`
  Targets     []*types.Target      `json:"targets"`
}

// CalcError distinguishes failures the scheduler should retry (ITC down,
// timeout) from failures that are answers in themselves (the ITC rejected
// the inputs). The latter are stored as odb_error data.
type CalcError struct {
  Recoverable bool
  Status      int
  Detail      string
}

func (e *CalcError) Error() string {
  kind := "unrecoverable"
  if e.Recoverable {
    kind = "recoverable"
  }
  return fmt.Sprintf("itc %s failure (status %d): %s", kind, e.Status, e.Detail)
}

type ItcClient interface {
  Calculate(ctx context.Context, input *ItcInput) (*ObscalcResult, error)
}

type itcClient struct {
  log        *logger.Logger
  baseURL    string
  httpClient *http.Client
}

func NewItcClient(log *logger.Logger) (ItcClient, error) {
  baseURL := strings.TrimSpace(os.Getenv("ITC_URL"))
  if baseURL == "" {
    return nil, fmt.Errorf("missing ITC_URL")
  }

  timeoutSec := 60
  if v := os.Getenv("ITC_TIMEOUT_SECONDS"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
      timeoutSec = parsed
    }
  }

  return &itcClient{
    log:        log.With("service", "ItcClient"),
    baseURL:    strings.TrimRight(baseURL, "/"),
    httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
  }, nil
}

type itcResponse struct {
  ItcResult       json.RawMessage `json:"itc_result"`
  ExecutionDigest json.RawMessage `json:"execution_digest"`
  Error           *struct {
    Message string `json:"message"`
  } `json:"error,omitempty"`
}

func (c *itcClient) Calculate(ctx context.Context, input *ItcInput) (*ObscalcResult, error) {
  if input == nil || input.Observation == nil {
    return nil, &CalcError{Recoverable: false, Detail: "missing observation input"}
  }
  body, err := json.Marshal(input)
  if err != nil {
    return nil, &CalcError{Recoverable: false, Detail: fmt.Sprintf("encode input: %v", err)}
  }

  req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calculate", bytes.NewReader(body))
  if err != nil {
    return nil, &CalcError{Recoverable: false, Detail: fmt.Sprintf("build request: %v", err)}
  }
  req.Header.Set("Content-Type", "application/json")

  resp, err := c.httpClient.Do(req)
  if err != nil {
    // Network-level failures are the scheduler's problem, not the inputs'.
    return nil, &CalcError{Recoverable: true, Detail: err.Error()}
  }
  defer resp.Body.Close()

  raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
  if err != nil {
    return nil, &CalcError{Recoverable: true, Status: resp.StatusCode, Detail: err.Error()}
  }

  switch {
  case resp.StatusCode >= 500:
    return nil, &CalcError{Recoverable: true, Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
  case resp.StatusCode >= 400:
    return nil, &CalcError{Recoverable: false, Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
  }

  var parsed itcResponse
  if err := json.Unmarshal(raw, &parsed); err != nil {
    return nil, &CalcError{Recoverable: false, Status: resp.StatusCode, Detail: fmt.Sprintf("decode response: %v", err)}
  }
  if parsed.Error != nil {
    return nil, &CalcError{Recoverable: false, Status: resp.StatusCode, Detail: parsed.Error.Message}
  }
  return &ObscalcResult{
    ItcResult:       []byte(parsed.ItcResult),
    ExecutionDigest: []byte(parsed.ExecutionDigest),
  }, nil
}

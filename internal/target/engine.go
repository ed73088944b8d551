package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dbsmedya/gomigrator/internal/restclient"
)

// ErrNoDeployment is returned when the target has no deployment of a
// process.
var ErrNoDeployment = errors.New("no target deployment")

// Key is a target engine key. The REST API sends keys as strings, older
// versions as numbers; both decode.
type Key int64

func (k *Key) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*k = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key %s: %w", data, err)
	}
	*k = Key(n)
	return nil
}

func (k Key) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatInt(int64(k), 10))), nil
}

// ProcessDefinition is a deployed target process.
type ProcessDefinition struct {
	Key           int64
	BPMNProcessID string
	Version       int
	TenantID      string
	XML           []byte
}

// Job is an activated job.
type Job struct {
	Key                int64
	Type               string
	ProcessInstanceKey int64
	ElementID          string
	ElementInstanceKey int64
	TenantID           string
	Variables          map[string]interface{}
}

// ScopedVariables sets variables on a flow scope. An empty ScopeID means
// the activated element itself.
type ScopedVariables struct {
	ScopeID   string
	Variables map[string]interface{}
}

// Activation activates one element.
type Activation struct {
	ElementID string
	Variables []ScopedVariables
}

// Modification moves tokens of one process instance in a single command.
type Modification struct {
	ProcessInstanceKey int64
	Activate           []Activation
	Terminate          []int64
}

// JobRequest describes one job activation poll.
type JobRequest struct {
	Type           string
	Worker         string
	MaxJobs        int
	LockTimeout    time.Duration
	RequestTimeout time.Duration
	FetchVariables []string
}

// Engine is the command side of the target engine.
type Engine interface {
	LatestProcessDefinition(ctx context.Context, bpmnProcessID, tenantID string) (*ProcessDefinition, error)
	CreateInstance(ctx context.Context, processDefinitionKey int64, tenantID string, vars map[string]interface{}) (int64, error)
	ActivateJobs(ctx context.Context, req JobRequest) ([]Job, error)
	ModifyInstance(ctx context.Context, mod Modification) error
}

// RESTEngine implements Engine over the target REST API.
type RESTEngine struct {
	client *restclient.Client
}

// NewRESTEngine wraps a REST client.
func NewRESTEngine(client *restclient.Client) *RESTEngine {
	return &RESTEngine{client: client}
}

type definitionSearch struct {
	Filter struct {
		ProcessDefinitionID string `json:"processDefinitionId"`
		IsLatestVersion     bool   `json:"isLatestVersion"`
		TenantID            string `json:"tenantId,omitempty"`
	} `json:"filter"`
}

type definitionItem struct {
	ProcessDefinitionKey Key    `json:"processDefinitionKey"`
	ProcessDefinitionID  string `json:"processDefinitionId"`
	Version              int    `json:"version"`
	TenantID             string `json:"tenantId"`
}

// LatestProcessDefinition resolves the latest deployed version of a
// process and loads its BPMN XML.
func (e *RESTEngine) LatestProcessDefinition(ctx context.Context, bpmnProcessID, tenantID string) (*ProcessDefinition, error) {
	var search definitionSearch
	search.Filter.ProcessDefinitionID = bpmnProcessID
	search.Filter.IsLatestVersion = true
	search.Filter.TenantID = tenantID

	var out struct {
		Items []definitionItem `json:"items"`
	}
	if err := e.client.Post(ctx, "/v2/process-definitions/search", search, &out); err != nil {
		return nil, fmt.Errorf("failed to search process definition %s: %w", bpmnProcessID, err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("process %s: %w", bpmnProcessID, ErrNoDeployment)
	}

	item := out.Items[0]
	for _, candidate := range out.Items[1:] {
		if candidate.Version > item.Version {
			item = candidate
		}
	}

	path := fmt.Sprintf("/v2/process-definitions/%d/xml", int64(item.ProcessDefinitionKey))
	xml, err := e.client.GetRaw(ctx, path, restclient.XML)
	if err != nil {
		return nil, fmt.Errorf("failed to load xml of process definition %d: %w", int64(item.ProcessDefinitionKey), err)
	}

	return &ProcessDefinition{
		Key:           int64(item.ProcessDefinitionKey),
		BPMNProcessID: item.ProcessDefinitionID,
		Version:       item.Version,
		TenantID:      item.TenantID,
		XML:           xml,
	}, nil
}

type createInstanceRequest struct {
	ProcessDefinitionKey Key                    `json:"processDefinitionKey"`
	TenantID             string                 `json:"tenantId,omitempty"`
	Variables            map[string]interface{} `json:"variables,omitempty"`
}

// CreateInstance starts an instance of a process definition.
func (e *RESTEngine) CreateInstance(ctx context.Context, processDefinitionKey int64, tenantID string, vars map[string]interface{}) (int64, error) {
	req := createInstanceRequest{
		ProcessDefinitionKey: Key(processDefinitionKey),
		TenantID:             tenantID,
		Variables:            vars,
	}

	var out struct {
		ProcessInstanceKey Key `json:"processInstanceKey"`
	}
	if err := e.client.Post(ctx, "/v2/process-instances", req, &out); err != nil {
		return 0, fmt.Errorf("failed to create instance of %d: %w", processDefinitionKey, err)
	}
	return int64(out.ProcessInstanceKey), nil
}

type activationRequest struct {
	Type              string   `json:"type"`
	Worker            string   `json:"worker"`
	Timeout           int64    `json:"timeout"`
	MaxJobsToActivate int      `json:"maxJobsToActivate"`
	RequestTimeout    int64    `json:"requestTimeout"`
	FetchVariable     []string `json:"fetchVariable,omitempty"`
}

type activatedJob struct {
	JobKey             Key                    `json:"jobKey"`
	Type               string                 `json:"type"`
	ProcessInstanceKey Key                    `json:"processInstanceKey"`
	ElementID          string                 `json:"elementId"`
	ElementInstanceKey Key                    `json:"elementInstanceKey"`
	TenantID           string                 `json:"tenantId"`
	Variables          map[string]interface{} `json:"variables"`
}

// ActivateJobs long-polls for jobs of a type.
func (e *RESTEngine) ActivateJobs(ctx context.Context, req JobRequest) ([]Job, error) {
	body := activationRequest{
		Type:              req.Type,
		Worker:            req.Worker,
		Timeout:           req.LockTimeout.Milliseconds(),
		MaxJobsToActivate: req.MaxJobs,
		RequestTimeout:    req.RequestTimeout.Milliseconds(),
		FetchVariable:     req.FetchVariables,
	}

	var out struct {
		Jobs []activatedJob `json:"jobs"`
	}
	if err := e.client.Post(ctx, "/v2/jobs/activation", body, &out); err != nil {
		return nil, fmt.Errorf("failed to activate %s jobs: %w", req.Type, err)
	}

	jobs := make([]Job, 0, len(out.Jobs))
	for _, j := range out.Jobs {
		jobs = append(jobs, Job{
			Key:                int64(j.JobKey),
			Type:               j.Type,
			ProcessInstanceKey: int64(j.ProcessInstanceKey),
			ElementID:          j.ElementID,
			ElementInstanceKey: int64(j.ElementInstanceKey),
			TenantID:           j.TenantID,
			Variables:          j.Variables,
		})
	}
	return jobs, nil
}

type variableInstruction struct {
	Variables map[string]interface{} `json:"variables"`
	ScopeID   string                 `json:"scopeId,omitempty"`
}

type activateInstruction struct {
	ElementID            string                `json:"elementId"`
	VariableInstructions []variableInstruction `json:"variableInstructions,omitempty"`
}

type terminateInstruction struct {
	ElementInstanceKey Key `json:"elementInstanceKey"`
}

type modificationRequest struct {
	ActivateInstructions  []activateInstruction  `json:"activateInstructions,omitempty"`
	TerminateInstructions []terminateInstruction `json:"terminateInstructions,omitempty"`
}

// ModifyInstance applies all activations and terminations in one command.
func (e *RESTEngine) ModifyInstance(ctx context.Context, mod Modification) error {
	var body modificationRequest
	for _, a := range mod.Activate {
		inst := activateInstruction{ElementID: a.ElementID}
		for _, sv := range a.Variables {
			inst.VariableInstructions = append(inst.VariableInstructions, variableInstruction{
				Variables: sv.Variables,
				ScopeID:   sv.ScopeID,
			})
		}
		body.ActivateInstructions = append(body.ActivateInstructions, inst)
	}
	for _, key := range mod.Terminate {
		body.TerminateInstructions = append(body.TerminateInstructions, terminateInstruction{ElementInstanceKey: Key(key)})
	}

	path := fmt.Sprintf("/v2/process-instances/%d/modification", mod.ProcessInstanceKey)
	if err := e.client.Post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("failed to modify instance %d: %w", mod.ProcessInstanceKey, err)
	}
	return nil
}

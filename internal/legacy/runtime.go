package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/gomigrator/internal/restclient"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// APITimeLayout is the timestamp layout of the legacy REST API.
const APITimeLayout = "2006-01-02T15:04:05.000-0700"

// MultiInstanceBodySuffix marks the wrapper activity of a multi-instance
// construct in the activity instance tree.
const MultiInstanceBodySuffix = "#multiInstanceBody"

// Instance is an active legacy root process instance.
type Instance struct {
	ID                   string `json:"id"`
	BusinessKey          string `json:"businessKey"`
	ProcessDefinitionID  string `json:"processDefinitionId"`
	ProcessDefinitionKey string `json:"processDefinitionKey"`
	TenantID             string `json:"tenantId"`
	State                string `json:"state"`
	StartTime            string `json:"startTime"`
}

// Started parses the instance start time. Unparseable values yield the
// zero time.
func (i *Instance) Started() time.Time {
	t, err := time.Parse(APITimeLayout, i.StartTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsActive reports whether the instance is still running.
func (i *Instance) IsActive() bool {
	return i.State == "ACTIVE" || i.State == "SUSPENDED"
}

// ActivityInstance is a node of the live activity instance tree.
type ActivityInstance struct {
	ID                       string               `json:"id"`
	ParentActivityInstanceID string               `json:"parentActivityInstanceId"`
	ActivityID               string               `json:"activityId"`
	ActivityType             string               `json:"activityType"`
	ActivityName             string               `json:"activityName"`
	ProcessInstanceID        string               `json:"processInstanceId"`
	ChildActivityInstances   []ActivityInstance   `json:"childActivityInstances"`
	ChildTransitionInstances []TransitionInstance `json:"childTransitionInstances"`
}

// TransitionInstance is a token waiting before or after an activity.
type TransitionInstance struct {
	ID                       string `json:"id"`
	ParentActivityInstanceID string `json:"parentActivityInstanceId"`
	ActivityID               string `json:"activityId"`
	ActivityType             string `json:"activityType"`
	ExecutionID              string `json:"executionId"`
}

// RuntimeSource reads live state from the legacy engine.
type RuntimeSource interface {
	CountActive(ctx context.Context, since time.Time) (int64, error)
	PageActive(ctx context.Context, since time.Time, offset, limit int) ([]Instance, error)
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ActivityTree(ctx context.Context, processInstanceID string) (*ActivityInstance, error)
	// Variables returns the variables whose scope is the activity
	// instance. The root activity instance id equals the process instance
	// id, so this also yields the global variables.
	Variables(ctx context.Context, activityInstanceID string) ([]variables.Value, error)
	CalledProcessInstance(ctx context.Context, activityInstanceID string) (string, error)
}

// RESTRuntimeSource implements RuntimeSource over the legacy REST API.
type RESTRuntimeSource struct {
	client *restclient.Client
}

// NewRESTRuntimeSource wraps a REST client.
func NewRESTRuntimeSource(client *restclient.Client) *RESTRuntimeSource {
	return &RESTRuntimeSource{client: client}
}

type sorting struct {
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

type activeQuery struct {
	Unfinished           bool      `json:"unfinished"`
	RootProcessInstances bool      `json:"rootProcessInstances"`
	StartedAfter         string    `json:"startedAfter,omitempty"`
	Sorting              []sorting `json:"sorting,omitempty"`
}

func newActiveQuery(since time.Time, sorted bool) activeQuery {
	q := activeQuery{Unfinished: true, RootProcessInstances: true}
	if !since.IsZero() {
		q.StartedAfter = since.Format(APITimeLayout)
	}
	if sorted {
		q.Sorting = []sorting{
			{SortBy: "startTime", SortOrder: "asc"},
			{SortBy: "instanceId", SortOrder: "asc"},
		}
	}
	return q
}

// CountActive counts unfinished root instances started at or after since.
func (s *RESTRuntimeSource) CountActive(ctx context.Context, since time.Time) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := s.client.Post(ctx, "/history/process-instance/count", newActiveQuery(since, false), &out); err != nil {
		return 0, fmt.Errorf("failed to count active instances: %w", err)
	}
	return out.Count, nil
}

// PageActive returns unfinished root instances ordered by start time and id.
func (s *RESTRuntimeSource) PageActive(ctx context.Context, since time.Time, offset, limit int) ([]Instance, error) {
	params := url.Values{}
	params.Set("firstResult", strconv.Itoa(offset))
	params.Set("maxResults", strconv.Itoa(limit))

	var out []Instance
	if err := s.client.Post(ctx, "/history/process-instance?"+params.Encode(), newActiveQuery(since, true), &out); err != nil {
		return nil, fmt.Errorf("failed to page active instances: %w", err)
	}
	return out, nil
}

// GetInstance loads one instance. Unknown ids return ErrNotFound.
func (s *RESTRuntimeSource) GetInstance(ctx context.Context, id string) (*Instance, error) {
	var out Instance
	err := s.client.Get(ctx, "/history/process-instance/"+url.PathEscape(id), nil, &out)
	if restclient.IsNotFound(err) {
		return nil, fmt.Errorf("process instance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load process instance %s: %w", id, err)
	}
	return &out, nil
}

// ActivityTree loads the live activity instance tree of an instance.
// Finished or unknown instances return ErrNotFound.
func (s *RESTRuntimeSource) ActivityTree(ctx context.Context, processInstanceID string) (*ActivityInstance, error) {
	var out ActivityInstance
	path := "/process-instance/" + url.PathEscape(processInstanceID) + "/activity-instances"
	err := s.client.Get(ctx, path, nil, &out)
	if restclient.IsNotFound(err) {
		return nil, fmt.Errorf("process instance %s: %w", processInstanceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load activity tree of %s: %w", processInstanceID, err)
	}
	return &out, nil
}

type variableInstance struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Value     json.RawMessage `json:"value"`
	ValueInfo struct {
		ObjectTypeName          string `json:"objectTypeName"`
		SerializationDataFormat string `json:"serializationDataFormat"`
	} `json:"valueInfo"`
}

// Variables loads the variables scoped to an activity instance.
func (s *RESTRuntimeSource) Variables(ctx context.Context, activityInstanceID string) ([]variables.Value, error) {
	params := url.Values{}
	params.Set("activityInstanceIdIn", activityInstanceID)
	params.Set("deserializeValues", "false")

	var out []variableInstance
	if err := s.client.Get(ctx, "/variable-instance", params, &out); err != nil {
		return nil, fmt.Errorf("failed to load variables of %s: %w", activityInstanceID, err)
	}

	values := make([]variables.Value, 0, len(out))
	for _, vi := range out {
		v, err := vi.toValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// toValue decodes the raw JSON value. Integral kinds are parsed from the
// literal so large longs keep their precision.
func (vi variableInstance) toValue() (variables.Value, error) {
	v := variables.Value{
		Name:                vi.Name,
		Kind:                variables.ParseKind(vi.Type),
		ObjectTypeName:      vi.ValueInfo.ObjectTypeName,
		SerializationFormat: vi.ValueInfo.SerializationDataFormat,
	}

	raw := strings.TrimSpace(string(vi.Value))
	if raw == "" || raw == "null" {
		return v, nil
	}

	switch v.Kind {
	case variables.KindShort, variables.KindInteger, variables.KindLong:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return v, fmt.Errorf("variable %q: %w", vi.Name, err)
		}
		v.Raw = n
	default:
		var decoded interface{}
		if err := json.Unmarshal(vi.Value, &decoded); err != nil {
			return v, fmt.Errorf("variable %q: %w", vi.Name, err)
		}
		v.Raw = decoded
	}
	return v, nil
}

// CalledProcessInstance returns the instance a call activity started, or
// an empty string when the activity called none.
func (s *RESTRuntimeSource) CalledProcessInstance(ctx context.Context, activityInstanceID string) (string, error) {
	var out struct {
		CalledProcessInstanceID string `json:"calledProcessInstanceId"`
	}
	if err := s.client.Get(ctx, "/history/activity-instance/"+url.PathEscape(activityInstanceID), nil, &out); err != nil {
		return "", fmt.Errorf("failed to load activity instance %s: %w", activityInstanceID, err)
	}
	return out.CalledProcessInstanceID, nil
}

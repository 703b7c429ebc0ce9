package homeconnect

import (
	"context"
	"net/http"
)

// Paths under /api/homeappliances. Every operation here follows the same
// pipeline: rate-limit gate, bearer header computed at send time, internal
// retry on throttling, and the "data" envelope unwrapped on success.
// Callers that want to block until a token is available should use
// WaitUntilAuthorized first; otherwise a missing token fails fast with
// ErrNoAccessToken.

const applianceBasePath = "/api/homeappliances"

func appliancePath(haid string, parts ...string) string {
	path := applianceBasePath + "/" + haid
	for _, part := range parts {
		path += "/" + part
	}
	return path
}

// GetAppliances lists all appliances paired with the account.
func (c *Client) GetAppliances(ctx context.Context) ([]HomeAppliance, error) {
	var data struct {
		Homeappliances []HomeAppliance `json:"homeappliances"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, applianceBasePath, nil, &data); err != nil {
		return nil, err
	}
	return data.Homeappliances, nil
}

// GetAppliance fetches one appliance by id.
func (c *Client) GetAppliance(ctx context.Context, haid string) (*HomeAppliance, error) {
	var data HomeAppliance
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatus lists the current status values of an appliance.
func (c *Client) GetStatus(ctx context.Context, haid string) ([]Status, error) {
	var data struct {
		Status []Status `json:"status"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "status"), nil, &data); err != nil {
		return nil, err
	}
	return data.Status, nil
}

// GetStatusValue fetches a single status value.
func (c *Client) GetStatusValue(ctx context.Context, haid, key string) (*Status, error) {
	var data Status
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "status", key), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSettings lists the settings of an appliance.
func (c *Client) GetSettings(ctx context.Context, haid string) ([]Setting, error) {
	var data struct {
		Settings []Setting `json:"settings"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "settings"), nil, &data); err != nil {
		return nil, err
	}
	return data.Settings, nil
}

// GetSetting fetches a single setting, including its constraints.
func (c *Client) GetSetting(ctx context.Context, haid, key string) (*Setting, error) {
	var data Setting
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "settings", key), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetSetting changes a single setting value.
func (c *Client) SetSetting(ctx context.Context, haid, key string, value any) error {
	body := dataEnvelope{Data: Setting{Key: key, Value: value}}
	return c.apiRequest(ctx, http.MethodPut, appliancePath(haid, "settings", key), body, nil)
}

// GetPrograms lists the programs an appliance supports.
func (c *Client) GetPrograms(ctx context.Context, haid string) ([]Program, error) {
	var data struct {
		Programs []Program `json:"programs"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "programs"), nil, &data); err != nil {
		return nil, err
	}
	return data.Programs, nil
}

// GetAvailablePrograms lists the programs currently available for start.
func (c *Client) GetAvailablePrograms(ctx context.Context, haid string) ([]Program, error) {
	var data struct {
		Programs []Program `json:"programs"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "programs", "available"), nil, &data); err != nil {
		return nil, err
	}
	return data.Programs, nil
}

// GetProgram fetches one available program with its options.
func (c *Client) GetProgram(ctx context.Context, haid, key string) (*Program, error) {
	var data Program
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "programs", "available", key), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetActiveProgram fetches the currently running program.
func (c *Client) GetActiveProgram(ctx context.Context, haid string) (*Program, error) {
	var data Program
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "programs", "active"), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetActiveProgram starts a program, optionally with options.
func (c *Client) SetActiveProgram(ctx context.Context, haid, key string, options []Option) error {
	body := dataEnvelope{Data: Program{Key: key, Options: options}}
	return c.apiRequest(ctx, http.MethodPut, appliancePath(haid, "programs", "active"), body, nil)
}

// StopActiveProgram stops the running program.
func (c *Client) StopActiveProgram(ctx context.Context, haid string) error {
	return c.apiRequest(ctx, http.MethodDelete, appliancePath(haid, "programs", "active"), nil, nil)
}

// GetActiveProgramOptions lists the options of the running program.
func (c *Client) GetActiveProgramOptions(ctx context.Context, haid string) ([]Option, error) {
	return c.getProgramOptions(ctx, haid, "active")
}

// SetActiveProgramOptions replaces all options of the running program.
func (c *Client) SetActiveProgramOptions(ctx context.Context, haid string, options []Option) error {
	return c.setProgramOptions(ctx, haid, "active", options)
}

// GetActiveProgramOption fetches one option of the running program.
func (c *Client) GetActiveProgramOption(ctx context.Context, haid, key string) (*Option, error) {
	return c.getProgramOption(ctx, haid, "active", key)
}

// SetActiveProgramOption changes one option of the running program.
func (c *Client) SetActiveProgramOption(ctx context.Context, haid, key string, value any) error {
	return c.setProgramOption(ctx, haid, "active", key, value)
}

// GetSelectedProgram fetches the program selected on the appliance.
func (c *Client) GetSelectedProgram(ctx context.Context, haid string) (*Program, error) {
	var data Program
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "programs", "selected"), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetSelectedProgram selects a program without starting it.
func (c *Client) SetSelectedProgram(ctx context.Context, haid, key string, options []Option) error {
	body := dataEnvelope{Data: Program{Key: key, Options: options}}
	return c.apiRequest(ctx, http.MethodPut, appliancePath(haid, "programs", "selected"), body, nil)
}

// GetSelectedProgramOptions lists the options of the selected program.
func (c *Client) GetSelectedProgramOptions(ctx context.Context, haid string) ([]Option, error) {
	return c.getProgramOptions(ctx, haid, "selected")
}

// SetSelectedProgramOptions replaces all options of the selected program.
func (c *Client) SetSelectedProgramOptions(ctx context.Context, haid string, options []Option) error {
	return c.setProgramOptions(ctx, haid, "selected", options)
}

// GetSelectedProgramOption fetches one option of the selected program.
func (c *Client) GetSelectedProgramOption(ctx context.Context, haid, key string) (*Option, error) {
	return c.getProgramOption(ctx, haid, "selected", key)
}

// SetSelectedProgramOption changes one option of the selected program.
func (c *Client) SetSelectedProgramOption(ctx context.Context, haid, key string, value any) error {
	return c.setProgramOption(ctx, haid, "selected", key, value)
}

// GetCommands lists the commands an appliance supports.
func (c *Client) GetCommands(ctx context.Context, haid string) ([]Command, error) {
	var data struct {
		Commands []Command `json:"commands"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "commands"), nil, &data); err != nil {
		return nil, err
	}
	return data.Commands, nil
}

// IssueCommand issues a command, e.g. "BSH.Common.Command.PauseProgram".
func (c *Client) IssueCommand(ctx context.Context, haid, key string) error {
	body := dataEnvelope{Data: Option{Key: key, Value: true}}
	return c.apiRequest(ctx, http.MethodPut, appliancePath(haid, "commands", key), body, nil)
}

func (c *Client) getProgramOptions(ctx context.Context, haid, which string) ([]Option, error) {
	var data struct {
		Options []Option `json:"options"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "programs", which, "options"), nil, &data); err != nil {
		return nil, err
	}
	return data.Options, nil
}

func (c *Client) setProgramOptions(ctx context.Context, haid, which string, options []Option) error {
	body := dataEnvelope{Data: optionList{Options: options}}
	return c.apiRequest(ctx, http.MethodPut, appliancePath(haid, "programs", which, "options"), body, nil)
}

func (c *Client) getProgramOption(ctx context.Context, haid, which, key string) (*Option, error) {
	var data Option
	if err := c.apiRequest(ctx, http.MethodGet, appliancePath(haid, "programs", which, "options", key), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) setProgramOption(ctx context.Context, haid, which, key string, value any) error {
	body := dataEnvelope{Data: Option{Key: key, Value: value}}
	return c.apiRequest(ctx, http.MethodPut, appliancePath(haid, "programs", which, "options", key), body, nil)
}

// dataEnvelope is the request wrapper the SDK media type requires.
type dataEnvelope struct {
	Data any `json:"data"`
}

type optionList struct {
	Options []Option `json:"options"`
}

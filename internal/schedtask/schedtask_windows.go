//go:build windows

package schedtask

import (
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/fleetline/agent/internal/logging"
)

var log = logging.L("schedtask")

// Task Scheduler 2.0 COM constants.
const (
	taskTriggerEvent    = 0
	taskTriggerLogon    = 9
	taskActionExec      = 0
	taskCreateOrUpdate  = 6
	taskLogonGroup      = 4
	taskRunLevelLimited = 0
)

// interactiveUsersGroup is the principal the task runs as: every
// interactively logged-on user, at limited privilege.
const interactiveUsersGroup = `BUILTIN\Users`

// Register builds the task definition, registers it (overwriting any
// existing task of the same name), and starts it once. Any failure while
// constructing a trigger, the action, or the registration aborts with an
// error so no partially-configured task is left behind; registration is the
// last step.
func Register(def Definition) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return fmt.Errorf("failed to initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("Schedule.Service")
	if err != nil {
		return fmt.Errorf("failed to create scheduler object: %w", err)
	}
	defer unknown.Release()

	service, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("failed to query scheduler object: %w", err)
	}
	defer service.Release()

	if _, err := oleutil.CallMethod(service, "Connect"); err != nil {
		return fmt.Errorf("connect to task scheduler: %w", err)
	}

	folder, err := callDispatch(service, "GetFolder", `\`)
	if err != nil {
		return fmt.Errorf("open task folder: %w", err)
	}
	defer folder.Release()

	taskDef, err := callDispatch(service, "NewTask", 0)
	if err != nil {
		return fmt.Errorf("create task definition: %w", err)
	}
	defer taskDef.Release()

	if err := configureTask(taskDef, def); err != nil {
		return err
	}

	regVar, err := oleutil.CallMethod(folder, "RegisterTaskDefinition",
		def.Name, taskDef, taskCreateOrUpdate, nil, nil, taskLogonGroup, nil)
	if err != nil {
		return fmt.Errorf("register task %q: %w", def.Name, err)
	}
	regVar.Clear()

	log.Info("scheduled task registered", "task", def.Name)

	task, err := callDispatch(folder, "GetTask", def.Name)
	if err != nil {
		return fmt.Errorf("read back task %q: %w", def.Name, err)
	}
	defer task.Release()

	if _, err := oleutil.CallMethod(task, "Run", ""); err != nil {
		return fmt.Errorf("start task %q: %w", def.Name, err)
	}
	log.Info("scheduled task started", "task", def.Name)
	return nil
}

func configureTask(taskDef *ole.IDispatch, def Definition) error {
	regInfo, err := getDispatch(taskDef, "RegistrationInfo")
	if err != nil {
		return fmt.Errorf("task registration info: %w", err)
	}
	defer regInfo.Release()
	if _, err := oleutil.PutProperty(regInfo, "Description", def.Description); err != nil {
		return fmt.Errorf("set task description: %w", err)
	}

	principal, err := getDispatch(taskDef, "Principal")
	if err != nil {
		return fmt.Errorf("task principal: %w", err)
	}
	defer principal.Release()
	if _, err := oleutil.PutProperty(principal, "GroupId", interactiveUsersGroup); err != nil {
		return fmt.Errorf("set task principal group: %w", err)
	}
	if _, err := oleutil.PutProperty(principal, "RunLevel", taskRunLevelLimited); err != nil {
		return fmt.Errorf("set task run level: %w", err)
	}

	settings, err := getDispatch(taskDef, "Settings")
	if err != nil {
		return fmt.Errorf("task settings: %w", err)
	}
	defer settings.Release()
	if _, err := oleutil.PutProperty(settings, "AllowDemandStart", true); err != nil {
		return fmt.Errorf("set task settings: %w", err)
	}
	if _, err := oleutil.PutProperty(settings, "DisallowStartIfOnBatteries", false); err != nil {
		return fmt.Errorf("set task settings: %w", err)
	}
	if _, err := oleutil.PutProperty(settings, "StopIfGoingOnBatteries", false); err != nil {
		return fmt.Errorf("set task settings: %w", err)
	}
	if _, err := oleutil.PutProperty(settings, "StartWhenAvailable", true); err != nil {
		return fmt.Errorf("set task settings: %w", err)
	}

	triggers, err := getDispatch(taskDef, "Triggers")
	if err != nil {
		return fmt.Errorf("task triggers: %w", err)
	}
	defer triggers.Release()

	logon, err := callDispatch(triggers, "Create", taskTriggerLogon)
	if err != nil {
		return fmt.Errorf("create logon trigger: %w", err)
	}
	logon.Release()

	for _, sub := range def.EventSubscriptions {
		event, err := callDispatch(triggers, "Create", taskTriggerEvent)
		if err != nil {
			return fmt.Errorf("create event trigger: %w", err)
		}
		_, err = oleutil.PutProperty(event, "Subscription", sub)
		event.Release()
		if err != nil {
			return fmt.Errorf("set event trigger subscription: %w", err)
		}
	}

	actions, err := getDispatch(taskDef, "Actions")
	if err != nil {
		return fmt.Errorf("task actions: %w", err)
	}
	defer actions.Release()

	action, err := callDispatch(actions, "Create", taskActionExec)
	if err != nil {
		return fmt.Errorf("create exec action: %w", err)
	}
	defer action.Release()
	if _, err := oleutil.PutProperty(action, "Path", def.Command); err != nil {
		return fmt.Errorf("set action path: %w", err)
	}
	if def.Arguments != "" {
		if _, err := oleutil.PutProperty(action, "Arguments", def.Arguments); err != nil {
			return fmt.Errorf("set action arguments: %w", err)
		}
	}
	if def.WorkingDir != "" {
		if _, err := oleutil.PutProperty(action, "WorkingDirectory", def.WorkingDir); err != nil {
			return fmt.Errorf("set action working directory: %w", err)
		}
	}
	return nil
}

// getDispatch reads a dispatch-valued property.
func getDispatch(obj *ole.IDispatch, name string) (*ole.IDispatch, error) {
	v, err := oleutil.GetProperty(obj, name)
	if err != nil {
		return nil, err
	}
	d := v.ToIDispatch()
	if d == nil {
		v.Clear()
		return nil, fmt.Errorf("property %s is not a dispatch", name)
	}
	return d, nil
}

// callDispatch invokes a method whose result is a dispatch.
func callDispatch(obj *ole.IDispatch, name string, args ...any) (*ole.IDispatch, error) {
	v, err := oleutil.CallMethod(obj, name, args...)
	if err != nil {
		return nil, err
	}
	d := v.ToIDispatch()
	if d == nil {
		v.Clear()
		return nil, fmt.Errorf("method %s returned no dispatch", name)
	}
	return d, nil
}

package slot

import (
	"fmt"
	"os"
	"strings"
)

// ActionKind enumerates the filesystem mutations a plan may contain.
type ActionKind int

const (
	// ActionBackup copies the target into the backup slot, replacing any prior backup.
	ActionBackup ActionKind = iota
	// ActionReplace copies the artifact over the target.
	ActionReplace
	// ActionChmod sets the target permission bits.
	ActionChmod
	// ActionRestore moves the backup onto the target.
	ActionRestore
	// ActionRemove deletes the target.
	ActionRemove
)

// String implements fmt.Stringer.
func (k ActionKind) String() string {
	switch k {
	case ActionBackup:
		return "backup"
	case ActionReplace:
		return "replace"
	case ActionChmod:
		return "chmod"
	case ActionRestore:
		return "restore"
	case ActionRemove:
		return "remove"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is a single filesystem step of a plan.
type Action struct {
	// Kind selects the mutation.
	Kind ActionKind
	// Source is the path read from (empty for chmod and remove).
	Source string
	// Destination is the path written, moved onto, or deleted.
	Destination string
	// Mode is used by ActionChmod.
	Mode os.FileMode
}

// String renders the action for logs and dry runs.
func (a Action) String() string {
	switch a.Kind {
	case ActionBackup:
		return fmt.Sprintf("backup %s -> %s", a.Source, a.Destination)
	case ActionReplace:
		return fmt.Sprintf("replace %s with %s", a.Destination, a.Source)
	case ActionChmod:
		return fmt.Sprintf("chmod %#o %s", uint32(a.Mode.Perm()), a.Destination)
	case ActionRestore:
		return fmt.Sprintf("restore %s -> %s", a.Source, a.Destination)
	case ActionRemove:
		return "remove " + a.Destination
	default:
		return a.Kind.String()
	}
}

// Plan is the ordered list of actions leading from one State to the next.
type Plan struct {
	// Operation is "install" or "uninstall".
	Operation string
	// Paths are the slot locations the plan acts on.
	Paths Paths
	// From is the observed state the plan was computed for.
	From State
	// To is the state reached once every action succeeded.
	To State
	// Actions are executed in order.
	Actions []Action
	// Outcome is what the operator is told afterwards.
	Outcome Outcome
	// DiscardsBackup is set when an existing backup gets overwritten.
	DiscardsBackup bool
	// StaleBackup is set when a backup exists without a target.
	StaleBackup bool
	// Blocked is set when the transition must not run from this state.
	Blocked bool
}

// PlanInstall computes the install transition for the observed state.
// An existing target is backed up first, unconditionally overwriting any
// previous backup: there is exactly one slot and the last backup wins.
// A backup without a target blocks the install, since afterwards the slot
// would hold content the target never had.
func PlanInstall(paths Paths, from State, artifact string) Plan {
	plan := Plan{
		Operation:      "install",
		Paths:          paths,
		From:           from,
		To:             StateInstalled,
		Outcome:        OutcomeInstalled,
		DiscardsBackup: from == StateInstalledWithBackup,
		StaleBackup:    from == StateBackupOnly,
	}

	if from == StateBackupOnly {
		plan.To = from
		plan.Outcome = OutcomeRefused
		plan.Blocked = true

		return plan
	}

	if from.HasTarget() {
		plan.To = StateInstalledWithBackup
		plan.Actions = append(plan.Actions, Action{
			Kind:        ActionBackup,
			Source:      paths.Target,
			Destination: paths.Backup,
		})
	}

	plan.Actions = append(plan.Actions,
		Action{
			Kind:        ActionReplace,
			Source:      artifact,
			Destination: paths.Target,
		},
		Action{
			Kind:        ActionChmod,
			Destination: paths.Target,
			Mode:        DefaultExecutableMode,
		},
	)

	return plan
}

// PlanUninstall computes the uninstall transition for the observed state.
// Without a target there is nothing to do; otherwise a backup is always
// consumed when present.
func PlanUninstall(paths Paths, from State) Plan {
	plan := Plan{
		Operation:   "uninstall",
		Paths:       paths,
		From:        from,
		To:          from,
		Outcome:     OutcomeNothingToUninstall,
		StaleBackup: from == StateBackupOnly,
	}

	switch from {
	case StateInstalledWithBackup:
		plan.To = StateInstalled
		plan.Outcome = OutcomeRestored
		plan.Actions = []Action{{
			Kind:        ActionRestore,
			Source:      paths.Backup,
			Destination: paths.Target,
		}}
	case StateInstalled:
		plan.To = StateAbsent
		plan.Outcome = OutcomeRemoved
		plan.Actions = []Action{{
			Kind:        ActionRemove,
			Destination: paths.Target,
		}}
	case StateAbsent, StateBackupOnly:
	}

	return plan
}

// IsNoop reports whether the plan mutates nothing.
func (p Plan) IsNoop() bool {
	return len(p.Actions) == 0
}

// Describe renders the plan as indented text.
func (p Plan) Describe() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "%s: %s -> %s\n", p.Operation, p.From, p.To)

	if p.IsNoop() {
		builder.WriteString("  no changes\n")
	}

	for i, action := range p.Actions {
		fmt.Fprintf(&builder, "  %d. %s\n", i+1, action)
	}

	if p.DiscardsBackup {
		fmt.Fprintf(&builder,
			"  warning: the backup at %s is overwritten with the current target; the older content is lost\n",
			p.Paths.Backup)
	}

	if p.Blocked {
		fmt.Fprintf(&builder,
			"  blocked: %s holds a backup without an installed target; restore or remove it first\n",
			p.Paths.Backup)
	} else if p.StaleBackup {
		fmt.Fprintf(&builder,
			"  warning: %s holds a backup without an installed target\n",
			p.Paths.Backup)
	}

	return builder.String()
}

package taskmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nimburion/taskmanager/pkg/observability/logger"
	"github.com/nimburion/taskmanager/pkg/observability/metrics"
	"github.com/nimburion/taskmanager/pkg/repository/document"
	"golang.org/x/sync/errgroup"
)

// Step names one operation of the walkthrough.
type Step string

const (
	StepInsertUser           Step = "insert_user"
	StepInsertTasks          Step = "insert_tasks"
	StepFindUserByName       Step = "find_user_by_name"
	StepFindUserByID         Step = "find_user_by_id"
	StepListOpenTasks        Step = "list_open_tasks"
	StepCountOpenTasks       Step = "count_open_tasks"
	StepRenameUser           Step = "rename_user"
	StepCompleteTasks        Step = "complete_tasks"
	StepDeleteUser           Step = "delete_user"
	StepDeleteCompletedTasks Step = "delete_completed_tasks"
)

// Names used by the lookup, rename and delete steps.
const (
	LookupUserName  = "Manan"
	RenameFromName  = "Sam"
	RenameToName    = "James"
	DeleteUserName  = "Manan"
	DefaultUsers    = "users"
	DefaultTasks    = "tasks"
	defaultLookupID = "5e1ad19c0108701064ed8c7a"
)

// StepReport is the outcome of one step. Err is set only for store failures;
// a query that matches nothing is a successful step.
type StepReport struct {
	Step    Step
	Summary string
	Err     error
}

// Options configures a walkthrough.
type Options struct {
	UsersCollection string
	TasksCollection string
	// LookupID is the identifier searched by the find-by-id step.
	LookupID document.ID
	// Sequential awaits each step before issuing the next one.
	Sequential bool
}

// Walkthrough issues the fixed sequence of document operations against the
// users and tasks collections and logs every outcome.
type Walkthrough struct {
	users *document.Collection[User]
	tasks *document.Collection[Task]
	opts  Options
	log   logger.Logger
}

// NewWalkthrough binds a walkthrough to exec. Empty options fall back to the
// users and tasks collections and the default lookup id.
func NewWalkthrough(exec document.Executor, opts Options, log logger.Logger) *Walkthrough {
	if opts.UsersCollection == "" {
		opts.UsersCollection = DefaultUsers
	}
	if opts.TasksCollection == "" {
		opts.TasksCollection = DefaultTasks
	}
	if opts.LookupID.IsZero() {
		opts.LookupID = document.MustParseID(defaultLookupID)
	}
	return &Walkthrough{
		users: document.NewCollection[User](exec, opts.UsersCollection),
		tasks: document.NewCollection[Task](exec, opts.TasksCollection),
		opts:  opts,
		log:   log,
	}
}

type stepOutcome struct {
	summary string
	empty   bool
}

type stepFunc func(ctx context.Context, log logger.Logger) (stepOutcome, error)

// Run executes every step and returns one report per step, in step order.
// Step failures are reported, never returned; the error is non-nil only when
// ctx ends before every step completed.
func (w *Walkthrough) Run(ctx context.Context) ([]StepReport, error) {
	runID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, runID)
	log := w.log.WithContext(ctx)
	log.Info("Walkthrough started", "sequential", w.opts.Sequential, "users", w.users.Name(), "tasks", w.tasks.Name())

	openTasks := w.tasks.Find(document.Filter{"completed": false})
	steps := []struct {
		step Step
		fn   stepFunc
	}{
		{StepInsertUser, w.insertUser},
		{StepInsertTasks, w.insertTasks},
		{StepFindUserByName, w.findUserByName},
		{StepFindUserByID, w.findUserByID},
		{StepListOpenTasks, func(ctx context.Context, log logger.Logger) (stepOutcome, error) {
			return w.listOpenTasks(ctx, log, openTasks)
		}},
		{StepCountOpenTasks, func(ctx context.Context, log logger.Logger) (stepOutcome, error) {
			return w.countOpenTasks(ctx, log, openTasks)
		}},
		{StepRenameUser, w.renameUser},
		{StepCompleteTasks, w.completeTasks},
		{StepDeleteUser, w.deleteUser},
		{StepDeleteCompletedTasks, w.deleteCompletedTasks},
	}

	reports := make([]StepReport, len(steps))
	futures := make([]<-chan document.Result[stepOutcome], len(steps))
	for i, s := range steps {
		stepLog := log.With("step", string(s.step))
		fn := s.fn
		futures[i] = document.Go(ctx, func(ctx context.Context) (stepOutcome, error) {
			return fn(ctx, stepLog)
		})
		if w.opts.Sequential {
			outcome, err := document.Await(ctx, futures[i])
			if ctxErr := ctx.Err(); ctxErr != nil {
				return reports[:i], ctxErr
			}
			reports[i] = report(s.step, outcome, err)
		}
	}

	if !w.opts.Sequential {
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range steps {
			g.Go(func() error {
				outcome, err := document.Await(gctx, futures[i])
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				reports[i] = report(s.step, outcome, err)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	log.Info("Walkthrough finished", "steps", len(reports), "failed", failed)
	return reports, nil
}

func report(step Step, outcome stepOutcome, err error) StepReport {
	switch {
	case err != nil && document.IsUnavailable(err):
		metrics.RecordWalkthroughStep(string(step), metrics.OutcomeUnavailable)
	case err != nil:
		metrics.RecordWalkthroughStep(string(step), metrics.OutcomeError)
	case outcome.empty:
		metrics.RecordWalkthroughStep(string(step), metrics.OutcomeNotFound)
	default:
		metrics.RecordWalkthroughStep(string(step), metrics.OutcomeSuccess)
	}
	return StepReport{Step: step, Summary: outcome.summary, Err: err}
}

// failure logs a store error with the given message and returns it unchanged.
func failure(log logger.Logger, message string, err error) (stepOutcome, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Warn(message, "error", err)
	} else {
		log.Error(message, "error", err)
	}
	return stepOutcome{}, err
}

func (w *Walkthrough) insertUser(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	seed := SeedUser()
	user, err := w.users.InsertOne(ctx, &seed)
	if err != nil {
		return failure(log, "Unable to add document", err)
	}
	log.Info("User inserted", "id", user.ID.Hex(), "name", user.Name, "age", user.Age)
	return stepOutcome{summary: fmt.Sprintf("inserted user %s (%s, %d)", user.ID.Hex(), user.Name, user.Age)}, nil
}

func (w *Walkthrough) insertTasks(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	res, err := w.tasks.InsertMany(ctx, SeedTasks())
	if err != nil {
		return failure(log, "Unable to add documents!", err)
	}
	log.Info("Tasks inserted", "inserted_count", res.InsertedCount)
	return stepOutcome{summary: fmt.Sprintf("inserted %d tasks", res.InsertedCount)}, nil
}

func (w *Walkthrough) findUserByName(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	user, err := w.users.FindOne(ctx, document.Filter{"name": LookupUserName})
	if err != nil {
		return failure(log, "Cannot connect to database", err)
	}
	return foundUser(log, user), nil
}

func (w *Walkthrough) findUserByID(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	user, err := w.users.FindByID(ctx, w.opts.LookupID)
	if err != nil {
		return failure(log, "Cannot connect to database", err)
	}
	return foundUser(log, user), nil
}

func foundUser(log logger.Logger, user *User) stepOutcome {
	if user == nil {
		log.Info("User not found")
		return stepOutcome{summary: "User not found", empty: true}
	}
	log.Info("User found", "id", user.ID.Hex(), "name", user.Name, "age", user.Age)
	return stepOutcome{summary: fmt.Sprintf("found user %s (%s, %d)", user.ID.Hex(), user.Name, user.Age)}
}

func (w *Walkthrough) listOpenTasks(ctx context.Context, log logger.Logger, cursor *document.Cursor[Task]) (stepOutcome, error) {
	tasks, err := cursor.All(ctx)
	if err != nil {
		return failure(log, "Cannot connect to database", err)
	}
	if len(tasks) == 0 {
		log.Info("No matching tasks found")
		return stepOutcome{summary: "No matching tasks found", empty: true}, nil
	}
	descriptions := make([]string, 0, len(tasks))
	for _, task := range tasks {
		descriptions = append(descriptions, task.Description)
	}
	log.Info("Open tasks found", "tasks", descriptions)
	return stepOutcome{summary: fmt.Sprintf("found %d open tasks", len(tasks))}, nil
}

func (w *Walkthrough) countOpenTasks(ctx context.Context, log logger.Logger, cursor *document.Cursor[Task]) (stepOutcome, error) {
	n, err := cursor.Count(ctx)
	if err != nil {
		return failure(log, "Cannot connect to database", err)
	}
	if n == 0 {
		log.Info("No matching tasks found")
		return stepOutcome{summary: "No matching tasks found", empty: true}, nil
	}
	log.Info("Open tasks counted", "count", n)
	return stepOutcome{summary: fmt.Sprintf("counted %d open tasks", n)}, nil
}

func (w *Walkthrough) renameUser(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	res, err := w.users.UpdateOne(ctx, document.Filter{"name": RenameFromName}, document.Update{
		Set: map[string]interface{}{"name": RenameToName},
		Inc: map[string]interface{}{"age": 1},
	})
	if err != nil {
		return failure(log, "User update failed", err)
	}
	log.Info("User update result", "matched_count", res.MatchedCount, "modified_count", res.ModifiedCount)
	return stepOutcome{
		summary: fmt.Sprintf("matched %d, modified %d users", res.MatchedCount, res.ModifiedCount),
		empty:   res.MatchedCount == 0,
	}, nil
}

func (w *Walkthrough) completeTasks(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	res, err := w.tasks.UpdateMany(ctx, document.Filter{"completed": false}, document.Update{
		Set: map[string]interface{}{"completed": true},
	})
	if err != nil {
		return failure(log, "Task update failed", err)
	}
	log.Info("Tasks updated", "modified_count", res.ModifiedCount)
	return stepOutcome{summary: fmt.Sprintf("modified %d tasks", res.ModifiedCount), empty: res.ModifiedCount == 0}, nil
}

func (w *Walkthrough) deleteUser(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	res, err := w.users.DeleteOne(ctx, document.Filter{"name": DeleteUserName})
	if err != nil {
		return failure(log, "Cannot connect to database", err)
	}
	if res.DeletedCount == 0 {
		log.Info("No user found")
		return stepOutcome{summary: "No user found", empty: true}, nil
	}
	log.Info("User deleted")
	return stepOutcome{summary: "User deleted"}, nil
}

func (w *Walkthrough) deleteCompletedTasks(ctx context.Context, log logger.Logger) (stepOutcome, error) {
	res, err := w.tasks.DeleteMany(ctx, document.Filter{"completed": true})
	if err != nil {
		return failure(log, "Cannot connect to database", err)
	}
	if res.DeletedCount == 0 {
		log.Info("No documents found")
		return stepOutcome{summary: "No documents found", empty: true}, nil
	}
	summary := fmt.Sprintf("%d tasks deleted", res.DeletedCount)
	log.Info(summary, "deleted_count", res.DeletedCount)
	return stepOutcome{summary: summary}, nil
}

package store

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names. Rows keyed by a logical key use it as the primary key, so
// memory:{student}:{card} is both the lock key and the row id.
const (
	tableUnits         = "units"
	tableItems         = "items"
	tableSessions      = "sessions"
	tableMemoryStates  = "memory_states"
	tableMasteryStates = "mastery_states"
	tableReviewLogs    = "review_logs"
	tableDailyActivity = "daily_activity"
)

const textSize = 2147483647

func col(name string, t field.Type) *schema.Column {
	c := &schema.Column{Name: name, Type: t}
	if t == field.TypeString {
		c.Size = 255
	}
	return c
}

func nullable(c *schema.Column) *schema.Column {
	c.Nullable = true
	return c
}

func text(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, Size: textSize}
}

var (
	unitsColumns = []*schema.Column{
		col("id", field.TypeString),
		col("name", field.TypeString),
		col("p_init", field.TypeFloat64),
		col("p_slip", field.TypeFloat64),
		col("p_guess", field.TypeFloat64),
		col("p_transit", field.TypeFloat64),
		col("created_at", field.TypeInt64),
	}
	unitsTable = &schema.Table{
		Name:       tableUnits,
		Columns:    unitsColumns,
		PrimaryKey: []*schema.Column{unitsColumns[0]},
	}

	itemsColumns = []*schema.Column{
		col("id", field.TypeString),
		col("kind", field.TypeString),
		text("front"),
		text("back"),
		nullable(col("unit_id", field.TypeString)),
		col("created_at", field.TypeInt64),
	}
	itemsTable = &schema.Table{
		Name:       tableItems,
		Columns:    itemsColumns,
		PrimaryKey: []*schema.Column{itemsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "item_unit_id", Columns: []*schema.Column{itemsColumns[4]}},
		},
	}

	sessionsColumns = []*schema.Column{
		col("id", field.TypeString),
		col("student_id", field.TypeString),
		col("started_at", field.TypeInt64),
	}
	sessionsTable = &schema.Table{
		Name:       tableSessions,
		Columns:    sessionsColumns,
		PrimaryKey: []*schema.Column{sessionsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "session_student_id", Columns: []*schema.Column{sessionsColumns[1]}},
		},
	}

	memoryStatesColumns = []*schema.Column{
		col("key", field.TypeString),
		col("student_id", field.TypeString),
		col("card_id", field.TypeString),
		col("version", field.TypeInt64),
		col("due_at", field.TypeInt64),
		col("lifecycle_rank", field.TypeInt),
		col("lifecycle", field.TypeInt),
		col("stability", field.TypeFloat64),
		col("difficulty", field.TypeFloat64),
		col("elapsed_days", field.TypeFloat64),
		col("scheduled_days", field.TypeInt),
		col("reps", field.TypeInt),
		col("lapses", field.TypeInt),
		nullable(col("last_review_at", field.TypeInt64)),
	}
	memoryStatesTable = &schema.Table{
		Name:       tableMemoryStates,
		Columns:    memoryStatesColumns,
		PrimaryKey: []*schema.Column{memoryStatesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "memorystate_student_due",
				Columns: []*schema.Column{memoryStatesColumns[1], memoryStatesColumns[4], memoryStatesColumns[5], memoryStatesColumns[2]},
			},
		},
	}

	masteryStatesColumns = []*schema.Column{
		col("key", field.TypeString),
		col("student_id", field.TypeString),
		col("unit_id", field.TypeString),
		col("version", field.TypeInt64),
		col("p_know", field.TypeFloat64),
		col("p_slip", field.TypeFloat64),
		col("p_guess", field.TypeFloat64),
		col("p_transit", field.TypeFloat64),
		col("stability", field.TypeFloat64),
		col("delta", field.TypeFloat64),
		col("color", field.TypeString),
		col("review_count", field.TypeInt),
		nullable(col("last_review_at", field.TypeInt64)),
	}
	masteryStatesTable = &schema.Table{
		Name:       tableMasteryStates,
		Columns:    masteryStatesColumns,
		PrimaryKey: []*schema.Column{masteryStatesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "masterystate_student_id", Columns: []*schema.Column{masteryStatesColumns[1]}},
		},
	}

	reviewLogsColumns = []*schema.Column{
		col("key", field.TypeString),
		col("id", field.TypeString),
		col("sequence", field.TypeInt64),
		col("student_id", field.TypeString),
		col("item_id", field.TypeString),
		col("session_id", field.TypeString),
		col("kind", field.TypeString),
		col("grade", field.TypeInt),
		col("correct", field.TypeBool),
		col("lifecycle_before", field.TypeInt),
		col("prev_due_at", field.TypeInt64),
		col("prev_stability", field.TypeFloat64),
		col("prev_difficulty", field.TypeFloat64),
		col("elapsed_days", field.TypeFloat64),
		col("scheduled_days", field.TypeInt),
		col("reviewed_at", field.TypeInt64),
		nullable(col("response_time_ms", field.TypeInt64)),
		nullable(col("unit_id", field.TypeString)),
		nullable(col("p_know_before", field.TypeFloat64)),
		nullable(col("p_know_after", field.TypeFloat64)),
		nullable(col("color_before", field.TypeString)),
		nullable(col("color_after", field.TypeString)),
	}
	reviewLogsTable = &schema.Table{
		Name:       tableReviewLogs,
		Columns:    reviewLogsColumns,
		PrimaryKey: []*schema.Column{reviewLogsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "reviewlog_sequence", Unique: true, Columns: []*schema.Column{reviewLogsColumns[2]}},
			{Name: "reviewlog_student_item", Columns: []*schema.Column{reviewLogsColumns[3], reviewLogsColumns[4], reviewLogsColumns[2]}},
			{Name: "reviewlog_student_reviewed_at", Columns: []*schema.Column{reviewLogsColumns[3], reviewLogsColumns[15]}},
		},
	}

	dailyActivityColumns = []*schema.Column{
		col("key", field.TypeString),
		col("student_id", field.TypeString),
		col("day", field.TypeString),
		col("reviews", field.TypeInt),
		col("correct", field.TypeInt),
		col("incorrect", field.TypeInt),
		col("time_on_task_ms", field.TypeInt64),
	}
	dailyActivityTable = &schema.Table{
		Name:       tableDailyActivity,
		Columns:    dailyActivityColumns,
		PrimaryKey: []*schema.Column{dailyActivityColumns[0]},
		Indexes: []*schema.Index{
			{Name: "dailyactivity_student_day", Columns: []*schema.Column{dailyActivityColumns[1], dailyActivityColumns[2]}},
		},
	}

	tables = []*schema.Table{
		unitsTable,
		itemsTable,
		sessionsTable,
		memoryStatesTable,
		masteryStatesTable,
		reviewLogsTable,
		dailyActivityTable,
	}
)

// migrate creates or updates every table, like the generated
// client.Schema.Create would.
func migrate(ctx context.Context, drv *entsql.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return err
	}
	return m.Create(ctx, tables...)
}

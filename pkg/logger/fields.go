package logger

import "time"

// Field is one structured attribute. Fields with an empty key are dropped.
type Field struct {
	Key   string
	Value any
}

func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field            { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field              { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val.String()} }
func Any(key string, val any) Field                { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

// Domain keys shared by every component so log lines join on them.
func PlayerID(id string) Field { return Field{Key: "player_id", Value: id} }
func BattleID(id string) Field { return Field{Key: "battle_id", Value: id} }
func ConnID(id string) Field   { return Field{Key: "conn_id", Value: id} }

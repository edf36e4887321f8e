package upload

import (
	"database/sql"
	"reflect"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	writtenKey  = "upload:written"
	replacedKey = "upload:replaced"
)

// Plugin runs a Synchronizer from gorm's create, update, delete and query callbacks.
type Plugin struct {
	sync *Synchronizer
	log  zerolog.Logger
}

var _ gorm.Plugin = (*Plugin)(nil)

func NewPlugin(sync *Synchronizer, logger zerolog.Logger) *Plugin {
	return &Plugin{sync: sync, log: logger.With().Str("component", "image-plugin").Logger()}
}

func (p *Plugin) Name() string { return "upload:images" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("upload:before_create", p.beforeCreate); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("upload:after_create", p.afterCreate); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("upload:before_update", p.beforeUpdate); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("upload:after_update", p.afterUpdate); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("upload:before_delete", p.beforeDelete); err != nil {
		return err
	}
	return cb.Query().After("gorm:after_query").Register("upload:after_query", p.afterQuery)
}

func (p *Plugin) beforeCreate(tx *gorm.DB) {
	if skip(tx) {
		return
	}
	var written []string
	eachEntity(tx, func(entity any) {
		if tx.Error != nil {
			return
		}
		pending := isUpload(entity)
		if err := p.sync.BeforeInsert(entity); err != nil {
			tx.AddError(err)
			return
		}
		if pending {
			written = append(written, entity.(ImageHolder).GetImage().Filename())
		}
	})
	if len(written) > 0 {
		tx.InstanceSet(writtenKey, written)
	}
}

func (p *Plugin) beforeUpdate(tx *gorm.DB) {
	if skip(tx) || tx.Statement.Schema == nil {
		return
	}
	rv := tx.Statement.ReflectValue
	if rv.Kind() != reflect.Struct || !rv.CanAddr() {
		return
	}
	holder, ok := rv.Addr().Interface().(ImageHolder)
	if !ok {
		return
	}
	field := tx.Statement.Schema.LookUpField(FieldName)
	pk := tx.Statement.Schema.PrioritizedPrimaryField
	if field == nil || pk == nil {
		return
	}
	id, zero := pk.ValueOf(tx.Statement.Context, rv)
	if zero {
		return
	}

	var oldImage Image
	err := tx.Session(&gorm.Session{NewDB: true}).
		Table(tx.Statement.Table).
		Select(field.DBName).
		Where(clause.Eq{Column: clause.Column{Name: pk.DBName}, Value: id}).
		Row().
		Scan(&oldImage)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		tx.AddError(errors.Wrap(err, "load current image"))
		return
	}

	newImage := holder.GetImage()
	var changed []string
	if newImage.IsUpload() || newImage.Filename() != oldImage.Filename() {
		changed = append(changed, FieldName)
	}
	// the old file stays until the row stops naming it, see afterUpdate
	replaced, err := p.sync.StageUpdate(holder, changed, oldImage, newImage)
	if err != nil {
		tx.AddError(err)
		return
	}
	if newImage.IsUpload() {
		tx.InstanceSet(writtenKey, []string{holder.GetImage().Filename()})
	}
	if replaced != "" {
		tx.InstanceSet(replacedKey, replaced)
	}
}

func (p *Plugin) beforeDelete(tx *gorm.DB) {
	if skip(tx) {
		return
	}
	eachEntity(tx, func(entity any) {
		if err := p.sync.BeforeRemove(entity); err != nil {
			p.log.Warn().Err(err).Msg("image file left behind")
		}
	})
}

func (p *Plugin) afterQuery(tx *gorm.DB) {
	if skip(tx) || tx.RowsAffected == 0 {
		return
	}
	eachEntity(tx, p.sync.AfterLoad)
}

func (p *Plugin) afterCreate(tx *gorm.DB) {
	if failed(tx) {
		p.discardWritten(tx)
	}
}

// afterUpdate drops the replaced file once the new row is written. When the
// statement failed or matched no row, the new upload goes instead and the old
// file is kept.
func (p *Plugin) afterUpdate(tx *gorm.DB) {
	if failed(tx) {
		p.discardWritten(tx)
		return
	}
	if v, ok := tx.InstanceGet(replacedKey); ok {
		p.sync.RemoveReplaced(v.(string))
	}
}

// discardWritten removes files written for a statement that did not make it
// to the database.
func (p *Plugin) discardWritten(tx *gorm.DB) {
	v, ok := tx.InstanceGet(writtenKey)
	if !ok {
		return
	}
	for _, name := range v.([]string) {
		if err := p.sync.Discard(name); err != nil {
			p.log.Warn().Err(err).Str("file", name).Msg("orphaned image not removed")
		}
	}
}

func failed(tx *gorm.DB) bool {
	return tx.Error != nil || tx.RowsAffected == 0
}

func skip(tx *gorm.DB) bool {
	return tx.Error != nil || tx.Statement.SkipHooks
}

func isUpload(entity any) bool {
	holder, ok := entity.(ImageHolder)
	return ok && holder.GetImage().IsUpload()
}

// eachEntity calls fn with a pointer to every addressable struct in the statement.
func eachEntity(tx *gorm.DB, fn func(entity any)) {
	rv := tx.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			visit(rv.Index(i), fn)
		}
	case reflect.Struct, reflect.Pointer:
		visit(rv, fn)
	}
}

func visit(v reflect.Value, fn func(entity any)) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct && v.CanAddr() {
		fn(v.Addr().Interface())
	}
}

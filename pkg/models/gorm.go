package models

func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&ContentItem{},
		&ReorderJournal{},
	}
}

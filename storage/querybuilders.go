package storage

// queryForTerms returns all terms, by id
func queryForTerms() string {
	return `
	select TER.term_id, TER.term_value
	from stxl.terms TER
	order by TER.term_id
	`
}

// queryForHeadRevision returns id, predecessor and commit time of the last revision
func queryForHeadRevision() string {
	return `
	select REV.revision_id, coalesce(REV.predecessor_id, 0), REV.committed_at
	from stxl.revisions REV
	order by REV.revision_id desc
	limit 1
	`
}

// queryForStatementsAtRevision returns the statements of each context as of revision $1.
// A context content is its last version at or before that revision
func queryForStatementsAtRevision() string {
	return `
	with latest_versions as (
		select distinct on (CVE.context_name) CVE.context_name, CVE.revision_id
		from stxl.context_versions CVE
		where CVE.revision_id <= $1
		order by CVE.context_name, CVE.revision_id desc
	)
	select STA.context_name, STA.subject_id, STA.predicate_id, STA.object_id, STA.validity
	from latest_versions LVE
	join stxl.statements STA on STA.context_name = LVE.context_name and STA.revision_id = LVE.revision_id
	order by STA.context_name
	`
}

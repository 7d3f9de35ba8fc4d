package prompts

const commandSchemaTemplate = `## Command format
Reply with a single JSON object and nothing else. The "intent" field selects which one of the parameter objects is present.

{"intent":"search","explanation":"...","search":{"entity_type":"contact","filters":{...}}}
{"intent":"refine","explanation":"...","refine":{"entity_type":"contact","filters":{...}}}
{"intent":"select","explanation":"...","select":{"selection_type":"add","indices":[1,2],"ids":[],"match":""}}
{"intent":"act","explanation":"...","act":{"action":"export","format":"csv","label":"","entity_type":"","fields":{},"tag":"","ids":[]}}
{"intent":"backup","explanation":"...","backup":{"comment":"..."}}

entity_type: contact, tag, note, relationship
filters (all optional): name, query, tags (list, all must match), company, email, kind, contact_id, limit
selection_type: add, remove, all, none
action: export, create, update, delete, tag, untag
format (export only): json, csv, vcard, markdown, html
label (export only, optional): short name used for the export file

Examples:
User: "find contacts tagged tech"
{"intent":"search","explanation":"Find contacts tagged tech","search":{"entity_type":"contact","filters":{"tags":["tech"]}}}
User: "select 1 and 2"
{"intent":"select","explanation":"Select results 1 and 2","select":{"selection_type":"add","indices":[1,2]}}
User: "delete the selected contacts"
{"intent":"act","explanation":"Delete the selected contacts","act":{"action":"delete"}}
User: "create a tag called colleagues"
{"intent":"act","explanation":"Create the tag colleagues","act":{"action":"create","entity_type":"tag","fields":{"name":"colleagues"}}}`

// CommandSchema describes the JSON command format the model must emit.
func CommandSchema() string {
	return commandSchemaTemplate
}

package accountstore

// Schema creates the account document table if it does not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS account_document
(
    user_id    VARCHAR                  NOT NULL,
    field      VARCHAR                  NOT NULL,
    document   JSONB                    NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, field)
);

CREATE INDEX IF NOT EXISTS ix_account_document_updated_at ON account_document USING btree (updated_at);
`
